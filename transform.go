package webbridge

import (
	"fmt"
	"path/filepath"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"
)

// transformExts lists the file types compiled before injection.
var transformExts = map[string]esbuild.Loader{
	".ts":  esbuild.LoaderTS,
	".mts": esbuild.LoaderTS,
	".tsx": esbuild.LoaderTSX,
	".jsx": esbuild.LoaderJSX,
	".mjs": esbuild.LoaderJS,
}

// needsTransform reports whether the file at path must be compiled to a
// classic script before a page can run it.
func needsTransform(path string) bool {
	_, ok := transformExts[strings.ToLower(filepath.Ext(path))]
	return ok
}

// TransformScript compiles source, read from path, into a self-contained
// IIFE a page can run from a plain <script> element. Sources that import
// other files are bundled with their imports, resolved relative to path.
func TransformScript(source, path string) (string, error) {
	loader, ok := transformExts[strings.ToLower(filepath.Ext(path))]
	if !ok {
		loader = esbuild.LoaderJS
	}

	if needsBundling(source) {
		result := esbuild.Build(esbuild.BuildOptions{
			EntryPoints:   []string{path},
			AbsWorkingDir: filepath.Dir(path),
			Bundle:        true,
			Format:        esbuild.FormatIIFE,
			Write:         false,
			Platform:      esbuild.PlatformBrowser,
			Target:        esbuild.ES2017,
		})
		if err := buildErrors(path, result.Errors); err != nil {
			return "", err
		}
		if len(result.OutputFiles) == 0 {
			return "", fmt.Errorf("bundling %s produced no output", path)
		}
		return string(result.OutputFiles[0].Contents), nil
	}

	result := esbuild.Transform(source, esbuild.TransformOptions{
		Loader:     loader,
		Format:     esbuild.FormatIIFE,
		Platform:   esbuild.PlatformBrowser,
		Target:     esbuild.ES2017,
		Sourcefile: path,
	})
	if err := buildErrors(path, result.Errors); err != nil {
		return "", err
	}
	return string(result.Code), nil
}

func buildErrors(path string, errs []esbuild.Message) error {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Text)
	}
	return fmt.Errorf("compiling %s: %s", path, strings.Join(msgs, "; "))
}

// needsBundling checks if a script contains import statements that
// require bundling. Simple scripts without imports can skip this step.
func needsBundling(source string) bool {
	return strings.Contains(source, "import ") ||
		strings.Contains(source, "import{") ||
		strings.Contains(source, "import(") ||
		strings.Contains(source, "require(")
}
