package types

type ServiceMode string

// Dispatch Service - order intake, driver search, live connections and notifications
// Location Ingest - consumes the driver location stream and keeps the store and geo index fresh
const (
	DispatchService ServiceMode = "dispatch-service"
	LocationIngest  ServiceMode = "location-ingest"
)

// ActorKind identifies who owns a live connection or caused an order event
type ActorKind string

func (k ActorKind) String() string {
	return string(k)
}

const (
	ActorDriver    ActorKind = "driver"
	ActorPassenger ActorKind = "passenger"
	ActorAdmin     ActorKind = "admin"
	// ActorSystem is used for changes made by the service itself (search exhaustion, reconciliation)
	ActorSystem ActorKind = "system"
)

// ActorKinds lists the kinds that may hold a live connection
var ActorKinds = []ActorKind{ActorDriver, ActorPassenger, ActorAdmin}

func (k ActorKind) IsValid() bool {
	switch k {
	case ActorDriver, ActorPassenger, ActorAdmin:
		return true
	default:
		return false
	}
}

// CandidateSource selects which collaborator answers nearby-driver queries
type CandidateSource string

const (
	SourcePostgres CandidateSource = "postgres"
	SourceRedis    CandidateSource = "redis"
)

func (s CandidateSource) IsValid() bool {
	return s == SourcePostgres || s == SourceRedis
}
