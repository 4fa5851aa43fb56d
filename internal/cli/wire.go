package cli

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/wekeo-mosaic/internal/config"
	"github.com/robert-malhotra/wekeo-mosaic/internal/pipeline"
	"github.com/robert-malhotra/wekeo-mosaic/internal/wekeo"
	"github.com/robert-malhotra/wekeo-mosaic/internal/wiring"
)

// resolveCredentials picks HDA credentials from flags, then the
// environment, then the hdarc file.
func resolveCredentials(cfg config.WEkEOConfig, user, password string) (wekeo.Credentials, error) {
	if user != "" || password != "" {
		if user == "" || password == "" {
			return wekeo.Credentials{}, errors.New("--user and --password must be given together")
		}
		return wekeo.Credentials{User: user, Password: password}, nil
	}
	if cfg.HasCredentials() {
		return wekeo.Credentials{User: cfg.User, Password: cfg.Password}, nil
	}

	path, err := hdarcPath(cfg)
	if err != nil {
		return wekeo.Credentials{}, err
	}
	creds, err := wekeo.ReadHDARC(path)
	if err != nil {
		if errors.Is(err, wekeo.ErrNoCredentials) {
			return wekeo.Credentials{}, fmt.Errorf("%w: set WEKEO_USER/WEKEO_PASSWORD or run 'wekeo-mosaic credentials init'", err)
		}
		return wekeo.Credentials{}, err
	}
	return creds, nil
}

func hdarcPath(cfg config.WEkEOConfig) (string, error) {
	if cfg.HDARC != "" {
		return cfg.HDARC, nil
	}
	return wekeo.DefaultHDARCPath()
}

// newPipeline builds the pipeline; creds enable the HDA catalog.
func (a *app) newPipeline(creds *wekeo.Credentials, quiet bool) *pipeline.Pipeline {
	return wiring.New(wiring.Options{
		WEkEO:       a.cfg.WEkEO,
		DEIMS:       a.cfg.DEIMS,
		Credentials: creds,
		Progress:    !quiet,
		Logger:      a.logger,
	}).Pipeline
}
