package domain

import "time"

type TrackingStatus string

const (
	TrackingStatusAssigned  TrackingStatus = "ASSIGNED"
	TrackingStatusPickedUp  TrackingStatus = "PICKED_UP"
	TrackingStatusInTransit TrackingStatus = "IN_TRANSIT"
	TrackingStatusNearby    TrackingStatus = "NEARBY"
	TrackingStatusDelivered TrackingStatus = "DELIVERED"
)

type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type LocationPoint struct {
	Location
	RecordedAt time.Time `json:"recorded_at"`
}

type DeliveryTracking struct {
	OrderID         string          `json:"order_id"`
	PartnerID       string          `json:"partner_id"`
	CurrentLocation Location        `json:"current_location"`
	History         []LocationPoint `json:"history"`
	Status          TrackingStatus  `json:"status"`
	DistanceKm      float64         `json:"distance_km"`
	EstimatedAt     time.Time       `json:"estimated_arrival"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Version         int64           `json:"-"`
}

type LocationUpdate struct {
	OrderID    string         `json:"order_id"`
	Location   Location       `json:"location"`
	DistanceKm float64        `json:"distance_km"`
	ETA        time.Time      `json:"eta"`
	Status     TrackingStatus `json:"status"`
}
