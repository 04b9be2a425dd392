package clientdist

import "embed"

// BigPipeJS is the client dispatcher that receives streamed pagelets.
//
// It is served by the demo server at "/static/bigpipe.js".
//
//go:embed bigpipe.js
var BigPipeJS []byte

// Static holds every file served under "/static/": the dispatcher and the
// scripts the demo page loads.
//
//go:embed *.js
var Static embed.FS
