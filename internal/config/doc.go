// Package config loads bigpipe server configuration.
//
// The configuration lives in bigpipe.json at the project root. YAML
// (bigpipe.yaml, bigpipe.yml) and TOML (bigpipe.toml) files are accepted
// as well; the format follows the file extension. Keys left out of a file
// keep their defaults.
//
// # Configuration File Structure
//
//	{
//	  "name": "Shop",
//	  "server": {
//	    "host": "0.0.0.0",
//	    "port": 8080,
//	    "shutdownTimeout": "10s"
//	  },
//	  "pipe": {
//	    "enabled": true,
//	    "threshold": 10,
//	    "clientScript": "/static/bigpipe.js",
//	    "browsers": [{"browser": "chrome", "minVersion": 90}]
//	  },
//	  "assets": {
//	    "manifest": "dist/manifest.json",
//	    "prefix": "/static/"
//	  },
//	  "metrics": {"enabled": true, "namespace": "shop", "path": "/metrics"},
//	  "tracing": {"enabled": false, "tracerName": "shop"},
//	  "log": {"level": "info", "format": "json"},
//	  "demo": {"counters": 50, "delay": "100ms", "padding": 1024}
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Listening on", cfg.Address())
package config
