package transport

import (
	"log/slog"

	"loggerctl/config"
)

// New builds the adapter selected by cfg.Broker. clientID overrides
// cfg.ClientID so concurrent connections never share an id.
func New(cfg *config.Config, clientID string, logger *slog.Logger) (Transport, Kind, error) {
	if clientID == "" {
		clientID = cfg.ClientID
	}
	opts := Options{
		Server:         cfg.Server,
		Port:           cfg.Port,
		ClientID:       clientID,
		Username:       cfg.Username,
		Password:       cfg.Password,
		ConnectTimeout: cfg.Timeout(),
		Logger:         logger,
	}

	if cfg.IsCloud() {
		t, err := NewCloudIoT(opts, Credentials{
			CertFile:   cfg.PublicKey,
			KeyFile:    cfg.PrivateKey,
			RootCAFile: cfg.CertificateRoot,
		})
		if err != nil {
			return nil, KindCloudIoT, err
		}
		return t, KindCloudIoT, nil
	}
	return NewGeneric(opts), KindGeneric, nil
}
