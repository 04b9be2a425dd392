// Package errors provides coded, actionable errors for the bigpipe CLI
// and server.
//
// The pipe package reports failures with plain Go sentinels and types.
// This package gives them a stable code, a plain-language explanation and
// a hint, for terminal output and JSON logs.
//
// # Error Categories
//
//   - render: failures while building or streaming a page
//   - transport: the client connection failed mid-response
//   - config: configuration files and values
//   - assets: asset manifest loading
//   - cli: command line usage
//
// # Usage
//
//	err := errors.New("E121").
//	    WithDetail("pipe.threshold must be positive").
//	    WithSuggestion("Remove the key to use the default of 10")
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR E121: Invalid configuration
//	//
//	//   pipe.threshold must be positive
//	//
//	//   Hint: Remove the key to use the default of 10
//
// Errors returned by pipe.Engine are converted with Classify:
//
//	if err := engine.Finalize(ctx, top); err != nil {
//	    logger.Error("render failed", "error", errors.Classify(err).FormatCompact())
//	}
package errors
