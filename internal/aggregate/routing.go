package aggregate

import "permitpulse-engine/internal/domain"

// Routing destinations.
const (
	PipelineHotCall       = "hot_call"
	PipelinePremiumMailer = "premium_mailer"
	PipelineNurtureDrip   = "nurture_drip"
	PipelineRetargeting   = "retargeting_ads"
	PipelineColdStorage   = "cold_storage"
)

// Route is the fixed decision table mapping (tier, contact completeness,
// value tier) to a routing destination and confidence. Pure function.
func Route(tier, contact, valueTier string) (pipeline string, confidence int) {
	highValue := valueTier == domain.ValueUltraHigh || valueTier == domain.ValueHigh

	switch tier {
	case domain.TierHot:
		switch contact {
		case domain.ContactComplete:
			return PipelineHotCall, 95
		case domain.ContactPartial:
			return PipelinePremiumMailer, 85
		default:
			return PipelinePremiumMailer, 75
		}
	case domain.TierWarm:
		switch {
		case highValue:
			return PipelinePremiumMailer, 80
		case contact == domain.ContactComplete:
			return PipelineNurtureDrip, 75
		default:
			return PipelineNurtureDrip, 70
		}
	case domain.TierCool:
		if highValue {
			return PipelineNurtureDrip, 65
		}
		return PipelineRetargeting, 60
	default:
		return PipelineColdStorage, 50
	}
}
