package webbridge

import (
	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/harness"
	"github.com/cryguy/webbridge/internal/resources"
	"github.com/cryguy/webbridge/internal/socket"
)

// Type aliases re-exporting internal types so callers can implement a view
// or configure resources without importing internal packages.

type Capability = core.Capability
type NavigationType = core.NavigationType
type NativeView = core.NativeView
type ViewHost = core.ViewHost
type ViewPort = harness.ViewPort
type ResourceRegistry = resources.Registry
type ResourceOptions = resources.Options
type ResourceStore = resources.Store
type SocketServer = socket.Server
type SocketOptions = socket.Options
type Session = socket.Session

// Constants re-exported from core.
const (
	CapabilityAndroid = core.CapabilityAndroid
	CapabilityWebKit  = core.CapabilityWebKit
	CapabilityLegacy  = core.CapabilityLegacy
	CapabilitySocket  = core.CapabilitySocket

	NavigationLinkClicked     = core.NavigationLinkClicked
	NavigationFormSubmitted   = core.NavigationFormSubmitted
	NavigationBackForward     = core.NavigationBackForward
	NavigationReload          = core.NavigationReload
	NavigationFormResubmitted = core.NavigationFormResubmitted
	NavigationOther           = core.NavigationOther
)

// Functions re-exported from internal packages.
var (
	ParseCapability     = core.ParseCapability
	ParseViewPort       = harness.ParseViewPort
	NewResourceRegistry = resources.NewRegistry
	OpenResourceStore   = resources.OpenSQLStore
	NewSocketServer     = socket.NewServer
)
