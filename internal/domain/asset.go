package domain

// AssetStatus is the operational state of a transport asset.
type AssetStatus string

const (
	AssetDocked      AssetStatus = "docked"
	AssetInTransit   AssetStatus = "in_transit"
	AssetMaintenance AssetStatus = "maintenance"
)

// TransportAsset is a vessel owned by a player and optionally assigned to a
// route. The fleet is managed outside this core; the revenue processor only
// reads it.
type TransportAsset struct {
	ID              string      `json:"id"`
	DefinitionID    string      `json:"definitionId"`
	Name            string      `json:"name"`
	OwnerID         string      `json:"ownerId"`
	RouteID         string      `json:"routeId,omitempty"`
	Status          AssetStatus `json:"status"`
	EfficiencyLevel int         `json:"efficiencyLevel"` // upgrade tier, revenue modifier (1 + level*0.1)
}

// OperatingCost holds the static per-definition cost rates, loaded once at
// startup. All rates are in the game currency.
type OperatingCost struct {
	DefinitionID       string  `json:"definitionId"`
	MaintenancePerHour float64 `json:"maintenancePerHour"`
	FuelPerMile        float64 `json:"fuelPerMile"`
	CrewPerHour        float64 `json:"crewCostPerHour"`
	InsurancePerDay    float64 `json:"insurancePerDay"`
	PortFeePerStop     float64 `json:"portFeePerStop"`
}
