package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/freshcart/grocery-delivery/internal/domain"
	"github.com/freshcart/grocery-delivery/internal/earnings"
	"github.com/freshcart/grocery-delivery/internal/orders"
	"github.com/freshcart/grocery-delivery/internal/tracking"
)

const EnvConfigFile = "CONFIG_FILE"

type Config struct {
	Orders   OrdersConfig   `yaml:"orders"`
	Tracking TrackingConfig `yaml:"tracking"`
	Earnings earnings.Rates `yaml:"earnings"`
}

// OrdersConfig amounts are in minor currency units.
type OrdersConfig struct {
	LowStockThreshold   int   `yaml:"lowStockThreshold"`
	DeliveryFee         int64 `yaml:"deliveryFee"`
	FreeDeliveryAbove   int64 `yaml:"freeDeliveryAbove"`
	DiscountPercent     int64 `yaml:"discountPercent"`
	AutoAssignOnConfirm bool  `yaml:"autoAssignOnConfirm"`
}

type TrackingConfig struct {
	AverageSpeedKmh float64 `yaml:"averageSpeedKmh"`
	NearbyKm        float64 `yaml:"nearbyKm"`
	HistoryLimit    int     `yaml:"historyLimit"`
	DefaultLat      float64 `yaml:"defaultLat"`
	DefaultLon      float64 `yaml:"defaultLon"`
	PushesPerSecond float64 `yaml:"pushesPerSecond"`
	PushBurst       int     `yaml:"pushBurst"`
}

func Default() *Config {
	return &Config{
		Orders: OrdersConfig{
			LowStockThreshold:   orders.DefaultLowStockThreshold,
			DeliveryFee:         orders.DefaultPricing.DeliveryFee,
			FreeDeliveryAbove:   orders.DefaultPricing.FreeDeliveryAbove,
			DiscountPercent:     orders.DefaultPricing.DiscountPercent,
			AutoAssignOnConfirm: true,
		},
		Tracking: TrackingConfig{
			AverageSpeedKmh: tracking.DefaultSettings.AverageSpeedKmh,
			NearbyKm:        tracking.DefaultSettings.NearbyKm,
			HistoryLimit:    tracking.DefaultSettings.HistoryLimit,
			DefaultLat:      tracking.DefaultSettings.DefaultLocation.Lat,
			DefaultLon:      tracking.DefaultSettings.DefaultLocation.Lon,
			PushesPerSecond: 1,
			PushBurst:       5,
		},
		Earnings: earnings.DefaultRates,
	}
}

func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func FromEnv() (*Config, error) {
	return Load(os.Getenv(EnvConfigFile))
}

func (c *Config) Validate() error {
	var errs []error

	if c.Orders.LowStockThreshold < 0 {
		errs = append(errs, errors.New("orders.lowStockThreshold cannot be negative"))
	}
	if c.Orders.DeliveryFee < 0 {
		errs = append(errs, errors.New("orders.deliveryFee cannot be negative"))
	}
	if c.Orders.FreeDeliveryAbove < 0 {
		errs = append(errs, errors.New("orders.freeDeliveryAbove cannot be negative"))
	}
	if c.Orders.DiscountPercent < 0 || c.Orders.DiscountPercent > 100 {
		errs = append(errs, fmt.Errorf("orders.discountPercent must be between 0 and 100, got %d", c.Orders.DiscountPercent))
	}

	if c.Tracking.AverageSpeedKmh <= 0 {
		errs = append(errs, errors.New("tracking.averageSpeedKmh must be positive"))
	}
	if c.Tracking.NearbyKm < 0 {
		errs = append(errs, errors.New("tracking.nearbyKm cannot be negative"))
	}
	if c.Tracking.HistoryLimit <= 0 {
		errs = append(errs, errors.New("tracking.historyLimit must be positive"))
	}
	if c.Tracking.DefaultLat < -90 || c.Tracking.DefaultLat > 90 {
		errs = append(errs, errors.New("tracking.defaultLat must be between -90 and 90"))
	}
	if c.Tracking.DefaultLon < -180 || c.Tracking.DefaultLon > 180 {
		errs = append(errs, errors.New("tracking.defaultLon must be between -180 and 180"))
	}
	if c.Tracking.PushesPerSecond <= 0 {
		errs = append(errs, errors.New("tracking.pushesPerSecond must be positive"))
	}
	if c.Tracking.PushBurst < 1 {
		errs = append(errs, errors.New("tracking.pushBurst must be at least 1"))
	}

	if c.Earnings.Base < 0 || c.Earnings.PerItem < 0 || c.Earnings.DistanceBonus < 0 {
		errs = append(errs, errors.New("earnings rates cannot be negative"))
	}

	return errors.Join(errs...)
}

func (c *Config) OrderOptions() []orders.Option {
	return []orders.Option{
		orders.WithLowStockThreshold(c.Orders.LowStockThreshold),
		orders.WithPricing(orders.Pricing{
			DeliveryFee:       c.Orders.DeliveryFee,
			FreeDeliveryAbove: c.Orders.FreeDeliveryAbove,
			DiscountPercent:   c.Orders.DiscountPercent,
		}),
		orders.WithAutoAssignOnConfirm(c.Orders.AutoAssignOnConfirm),
		orders.WithEarningsRates(c.Earnings),
	}
}

func (c *Config) TrackingSettings() tracking.Settings {
	return tracking.Settings{
		AverageSpeedKmh: c.Tracking.AverageSpeedKmh,
		NearbyKm:        c.Tracking.NearbyKm,
		HistoryLimit:    c.Tracking.HistoryLimit,
		DefaultLocation: domain.Location{Lat: c.Tracking.DefaultLat, Lon: c.Tracking.DefaultLon},
	}
}
