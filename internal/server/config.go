package server

// Config holds the ingress settings. Each pipeline has its own shared
// secret, carried either in a header or a query parameter of the same
// name.
type Config struct {
	ListenAddr string

	// Site-check pipeline secret.
	WatchSecretName  string
	WatchSecretValue string

	// Alertmanager pipeline secret.
	AlertSecretName  string
	AlertSecretValue string
}
