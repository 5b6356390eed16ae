package config

var defaults = map[string]any{
	"secret":    "",
	"token_ttl": 60,
	"log_level": "info",

	"listen_addr":      ":8080",
	"allowed_networks": "",
	"base_url":         "/",

	"rbac.policy_file": "./instance/roles.yaml",

	"session_ttl": 12, // hours

	"letters.max_size": 5 << 20, // bytes

	"smtp.host":     "host.docker.internal",
	"smtp.port":     25,
	"smtp.username": "",
	"smtp.password": "",
	"smtp.from":     "noreply@example.com",

	"storage.local.path": "issuance.db",
}

func Defaults() map[string]any {
	values := make(map[string]any)
	for k, v := range defaults {
		values[k] = v
	}
	return values
}
