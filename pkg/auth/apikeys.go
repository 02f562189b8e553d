package auth

import (
	"fmt"
	"strings"
)

// APIKeyIdentity holds the claims injected when a request authenticates via API key.
type APIKeyIdentity struct {
	TenantID string
	UserID   string
	Roles    []string
}

// ParseAPIKeys parses entries of the form key:tenant:user:ROLE1|ROLE2.
// Entries are separated by commas or whitespace.
func ParseAPIKeys(raw string) (map[string]APIKeyIdentity, error) {
	keys := make(map[string]APIKeyIdentity)
	for _, entry := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' || r == '\n' }) {
		parts := strings.SplitN(entry, ":", 4)
		if len(parts) < 3 {
			return nil, fmt.Errorf("api key entry %q: expected key:tenant:user[:roles]", redactKey(entry))
		}
		key := strings.TrimSpace(parts[0])
		if key == "" || strings.TrimSpace(parts[1]) == "" || strings.TrimSpace(parts[2]) == "" {
			return nil, fmt.Errorf("api key entry %q: key, tenant and user are required", redactKey(entry))
		}
		identity := APIKeyIdentity{
			TenantID: strings.TrimSpace(parts[1]),
			UserID:   strings.TrimSpace(parts[2]),
		}
		if len(parts) == 4 {
			identity.Roles = cleanRoles(strings.Split(parts[3], "|"))
		}
		keys[key] = identity
	}
	return keys, nil
}

func redactKey(entry string) string {
	if i := strings.Index(entry, ":"); i > 0 {
		return "***" + entry[i:]
	}
	return "***"
}
