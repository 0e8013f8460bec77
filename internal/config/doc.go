// Package config loads the application configuration.
//
// Values are resolved in order of increasing precedence:
//
//	1. Default()
//	2. YAML file (licensegate.yaml or configs/licensegate.yaml, or an explicit path)
//	3. Environment variables prefixed with LICENSEGATE_
//
// Nested sections map to underscored names, for example:
//
//	LICENSEGATE_SERVER_PORT=8080
//	LICENSEGATE_LICENSE_SERVER_URL=https://licenses.example.com
//	LICENSEGATE_LICENSE_TOKEN_SECRET=...
//	LICENSEGATE_QUEUE_WORKERS=4
package config
