package domain

// Phase is one stage of the physical handling pipeline.
type Phase string

const (
	PhaseCollection       Phase = "COLLECTION"
	PhaseFirstSorting     Phase = "FIRST_SORTING"
	PhaseCrossDocking     Phase = "CROSS_DOCKING"
	PhaseSecondSorting    Phase = "SECOND_SORTING"
	PhaseDistribution     Phase = "DISTRIBUTION"
	PhaseFinalDestination Phase = "FINAL_DESTINATION"
)

// DefaultPhaseOrder is the fixed pipeline order. A phase's position in this
// list is its slot in a shipment's execution plan.
func DefaultPhaseOrder() []Phase {
	return []Phase{
		PhaseCollection,
		PhaseFirstSorting,
		PhaseCrossDocking,
		PhaseSecondSorting,
		PhaseDistribution,
		PhaseFinalDestination,
	}
}
