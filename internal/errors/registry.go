package errors

import (
	"maps"
	"slices"
)

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
	DocURL     string
}

const docBase = "https://github.com/vango-dev/bigpipe/blob/main/docs/errors.md#"

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// Render errors (E001-E019)

	"E001": {
		Category:   CategoryRender,
		Message:    "Invalid pagelet id",
		Detail:     "Pagelet ids must be non-empty and unique within a response, since each one names a placeholder element in the document.",
		Suggestion: "Give every pagelet on the page a distinct id",
		DocURL:     docBase + "e001",
	},
	"E002": {
		Category: CategoryRender,
		Message:  "Pagelet producer failed",
		Detail:   "A pagelet's producer returned an error. Rendering stopped at this pagelet; frames already sent remain on the page.",
		DocURL:   docBase + "e002",
	},
	"E003": {
		Category:   CategoryRender,
		Message:    "Pagelet producer re-entered its own pagelet",
		Detail:     "A producer asked for the content of the pagelet it is producing.",
		Suggestion: "Build the content from the producer's own inputs instead of calling Payload or Display on its pagelet",
		DocURL:     docBase + "e003",
	},
	"E005": {
		Category: CategoryRender,
		Message:  "Render failed",
		DocURL:   docBase + "e005",
	},

	// Transport errors (E020-E039)

	"E004": {
		Category: CategoryTransport,
		Message:  "Writing to the client failed",
		Detail:   "The connection broke while streaming. This is usually the client navigating away.",
		DocURL:   docBase + "e004",
	},
	"E020": {
		Category: CategoryTransport,
		Message:  "WebSocket upgrade failed",
		Detail:   "The client requested the websocket stream but the upgrade handshake failed.",
		DocURL:   docBase + "e020",
	},

	// Config errors (E120-E139)

	"E120": {
		Category:   CategoryConfig,
		Message:    "Configuration file could not be parsed",
		Suggestion: "Check the file for syntax errors near the reported line",
		DocURL:     docBase + "e120",
	},
	"E121": {
		Category: CategoryConfig,
		Message:  "Invalid configuration",
		DocURL:   docBase + "e121",
	},
	"E122": {
		Category:   CategoryConfig,
		Message:    "Invalid port",
		Detail:     "The server port must be between 1 and 65535.",
		Suggestion: "Set server.port, or pass --port",
		DocURL:     docBase + "e122",
	},
	"E123": {
		Category: CategoryConfig,
		Message:  "Unsupported configuration format",
		Detail:   "Configuration files must end in .json, .yaml, .yml or .toml.",
		DocURL:   docBase + "e123",
	},

	// CLI errors (E140-E149)

	"E140": {
		Category: CategoryCLI,
		Message:  "Invalid render mode",
		Detail:   "The mode must be one of auto, stream, sync or dry-run.",
		DocURL:   docBase + "e140",
	},
	"E141": {
		Category:   CategoryCLI,
		Message:    "Configuration file not found",
		Suggestion: "Run 'bigpipe config init' to create one, or pass --config",
		DocURL:     docBase + "e141",
	},

	// Asset errors (E150-E159)

	"E150": {
		Category:   CategoryAssets,
		Message:    "Asset manifest could not be loaded",
		Suggestion: "Check assets.manifest, or assets.bucket and assets.key for S3",
		DocURL:     docBase + "e150",
	},
}

// GetAllCodes returns all registered error codes in ascending order.
func GetAllCodes() []string {
	return slices.Sorted(maps.Keys(registry))
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
