// Package config loads casement.yaml application manifests.
package config

import (
	"os"
	"regexp"
	"strings"
)

// manifestVar matches ${NAME} and ${NAME:-fallback} references in a
// manifest. NAME follows shell identifier rules; the fallback may be
// any text up to the closing brace.
var manifestVar = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-[^}]*)?\}`)

// ExpandEnv substitutes environment references in a manifest before it
// is parsed, so deployments can inject endpoints and credentials
// without editing the file:
//
//	adapter:
//	  type: webhook
//	  url: ${CASEMENT_HOOK_URL}
//	  channel: ${CASEMENT_CHANNEL:-casement:lifecycle}
//
// A reference to an unset or empty variable takes its fallback, or the
// empty string when none is given — never an error. Required values
// are enforced where they are consumed instead: the webhook adapter
// rejects an empty url, the transport section a missing addr.
func ExpandEnv(manifest string) string {
	return manifestVar.ReplaceAllStringFunc(manifest, func(ref string) string {
		parts := manifestVar.FindStringSubmatch(ref)
		name, fallback := parts[1], parts[2]
		if value := os.Getenv(name); value != "" {
			return value
		}
		return strings.TrimPrefix(fallback, ":-")
	})
}
