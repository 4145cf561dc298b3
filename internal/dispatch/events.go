package dispatch

// Event kinds carried to connected clients. Payloads expose only the
// minimal fields the recipient role needs, never raw store records.
const (
	KindLocationUpdate = "location_update"
	KindNewRideRequest = "new_ride_request"
	KindRideAccepted   = "ride_accepted"
)

// LocationUpdate fans out to every connected client when a driver
// publishes a position.
type LocationUpdate struct {
	Kind       string  `json:"type"`
	DriverID   string  `json:"driver_id"`
	DriverName string  `json:"driver_name"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
}

func NewLocationUpdate(driverID, driverName string, lat, lon float64) LocationUpdate {
	return LocationUpdate{Kind: KindLocationUpdate, DriverID: driverID, DriverName: driverName, Lat: lat, Lon: lon}
}

// NewRideRequest fans out to every connected driver when a rider
// submits a ride.
type NewRideRequest struct {
	Kind          string  `json:"type"`
	RideID        string  `json:"ride_id"`
	RiderName     string  `json:"rider_name"`
	PickupLat     float64 `json:"pickup_lat"`
	PickupLon     float64 `json:"pickup_lon"`
	PickupAddress string  `json:"pickup_address"`
}

func NewRideBroadcast(rideID, riderName string, lat, lon float64, address string) NewRideRequest {
	return NewRideRequest{Kind: KindNewRideRequest, RideID: rideID, RiderName: riderName, PickupLat: lat, PickupLon: lon, PickupAddress: address}
}

// RideAccepted goes to the single rider whose request was won.
type RideAccepted struct {
	Kind        string  `json:"type"`
	RideID      string  `json:"ride_id"`
	DriverName  string  `json:"driver_name"`
	DriverPhone string  `json:"driver_phone"`
	ETASeconds  float64 `json:"eta_seconds,omitempty"`
}

func NewRideAccepted(rideID, driverName, driverPhone string, etaSeconds float64) RideAccepted {
	return RideAccepted{Kind: KindRideAccepted, RideID: rideID, DriverName: driverName, DriverPhone: driverPhone, ETASeconds: etaSeconds}
}
