package domain

import "time"

// RouteSegment is one leg of a shipping route.
type RouteSegment struct {
	From       string  `json:"from"`
	To         string  `json:"to"`
	DistanceNM float64 `json:"distanceNm"`
	TravelTime float64 `json:"travelTimeHours"`
	FuelCost   float64 `json:"fuelCost"`
	RiskLevel  float64 `json:"riskLevel"` // 0..1
}

// RouteProfitability is a snapshot of a route's expected economics per trip.
type RouteProfitability struct {
	Revenue     float64 `json:"revenue"`
	FuelCost    float64 `json:"fuelCost"`
	CrewCost    float64 `json:"crewCost"`
	PortFees    float64 `json:"portFees"`
	Maintenance float64 `json:"maintenance"`
	Margin      float64 `json:"margin"`
}

// RoutePerformance accumulates realised results across revenue cycles.
type RoutePerformance struct {
	TripsCompleted int64   `json:"tripsCompleted"`
	TotalRevenue   float64 `json:"totalRevenue"`
	TotalExpenses  float64 `json:"totalExpenses"`
}

// Route is a shipping lane between two ports with optional waypoints.
// Routes are mutated by the route-management layer outside this core and
// read by the revenue cycle processor.
type Route struct {
	ID               string             `json:"id"`
	OwnerID          string             `json:"ownerId"`
	Origin           string             `json:"origin"`
	Destination      string             `json:"destination"`
	Waypoints        []string           `json:"waypoints"`
	Segments         []RouteSegment     `json:"segments"`
	AssignedAssetIDs []string           `json:"assignedAssetIds"`
	Active           bool               `json:"isActive"`
	EstimatedHours   float64            `json:"estimatedTimeHours"` // round-trip time
	Profitability    RouteProfitability `json:"profitability"`
	Performance      RoutePerformance   `json:"performance"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

// TotalDistance sums the segment distances in nautical miles.
func (r *Route) TotalDistance() float64 {
	var total float64
	for _, s := range r.Segments {
		total += s.DistanceNM
	}
	return total
}

// StopCount is the number of port calls per trip: origin, destination, and
// every waypoint.
func (r *Route) StopCount() int {
	return 2 + len(r.Waypoints)
}
