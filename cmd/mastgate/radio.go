package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/mastgate/internal/device"
	goble "github.com/srg/mastgate/internal/device/go-ble"
	"github.com/srg/mastgate/pkg/config"
)

// openRadio opens the host adapter; tests replace it with a fake radio
var openRadio = func(cfg *config.Config, logger *logrus.Logger) (device.Radio, func() error, error) {
	r := goble.NewRadio(goble.Options{
		DeviceID:    cfg.Radio.DeviceID,
		MaxClients:  cfg.Radio.MaxClients,
		DialTimeout: cfg.Radio.ConnectTimeout,
		ScanParams:  cfg.ScanParams(),
	}, logger)

	if err := r.Open(); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrRadioUnavailable, err)
	}
	return r, r.Close, nil
}
