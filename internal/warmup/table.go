package warmup

import "github.com/p-blackswan/engagement-guard/internal/models"

var (
	slowOnly   = []models.SpeedTier{models.SpeedUltraSlow}
	slowTiers  = []models.SpeedTier{models.SpeedUltraSlow, models.SpeedSlow}
	midTiers   = []models.SpeedTier{models.SpeedUltraSlow, models.SpeedSlow, models.SpeedMedium}
	everyTier  = models.AllSpeedTiers
	blockedCfg = Config{
		MaxActionsPerDay:    0,
		MaxCommentsPerDay:   0,
		MinHourSpread:       24,
		AllowedSpeedTiers:   nil,
		MaxConnectionDegree: 0,
		RequiresApproval:    true,
	}
)

// profiles is the policy table: per age bracket, the warm-up length,
// day-bucketed configs looked up by first match, the mature limits and the
// post-warm-up ramp.
var profiles = map[models.AccountAge]Profile{
	models.AgeUnder3Months: {
		Blocked: true,
		Mature:  blockedCfg,
	},
	models.Age3To6Months: {
		WarmupDays: 28,
		Steps: []Step{
			{MaxDay: 7, Config: Config{MaxActionsPerDay: 5, MaxCommentsPerDay: 0, MinHourSpread: 8, AllowedSpeedTiers: slowOnly, MaxConnectionDegree: 1, RequiresApproval: true}},
			{MaxDay: 14, Config: Config{MaxActionsPerDay: 10, MaxCommentsPerDay: 1, MinHourSpread: 6, AllowedSpeedTiers: slowOnly, MaxConnectionDegree: 1, RequiresApproval: true}},
			{MaxDay: 21, Config: Config{MaxActionsPerDay: 15, MaxCommentsPerDay: 3, MinHourSpread: 5, AllowedSpeedTiers: slowTiers, MaxConnectionDegree: 2}},
			{MaxDay: 28, Config: Config{MaxActionsPerDay: 20, MaxCommentsPerDay: 5, MinHourSpread: 4, AllowedSpeedTiers: slowTiers, MaxConnectionDegree: 2}},
		},
		Mature: Config{MaxActionsPerDay: 40, MaxCommentsPerDay: 10, MinHourSpread: 3, AllowedSpeedTiers: midTiers, MaxConnectionDegree: 2},
		Ramp:   standardRamp,
	},
	models.Age6To12Months: {
		WarmupDays: 14,
		Steps: []Step{
			{MaxDay: 4, Config: Config{MaxActionsPerDay: 15, MaxCommentsPerDay: 3, MinHourSpread: 6, AllowedSpeedTiers: slowTiers, MaxConnectionDegree: 1}},
			{MaxDay: 7, Config: Config{MaxActionsPerDay: 20, MaxCommentsPerDay: 5, MinHourSpread: 5, AllowedSpeedTiers: slowTiers, MaxConnectionDegree: 2}},
			{MaxDay: 14, Config: Config{MaxActionsPerDay: 30, MaxCommentsPerDay: 7, MinHourSpread: 4, AllowedSpeedTiers: midTiers, MaxConnectionDegree: 2}},
		},
		Mature: Config{MaxActionsPerDay: 60, MaxCommentsPerDay: 15, MinHourSpread: 3, AllowedSpeedTiers: midTiers, MaxConnectionDegree: 3},
		Ramp:   standardRamp,
	},
	models.Age1To2Years: {
		WarmupDays: 7,
		Steps: []Step{
			{MaxDay: 3, Config: Config{MaxActionsPerDay: 25, MaxCommentsPerDay: 5, MinHourSpread: 5, AllowedSpeedTiers: midTiers, MaxConnectionDegree: 2}},
			{MaxDay: 7, Config: Config{MaxActionsPerDay: 40, MaxCommentsPerDay: 10, MinHourSpread: 4, AllowedSpeedTiers: midTiers, MaxConnectionDegree: 2}},
		},
		Mature: Config{MaxActionsPerDay: 80, MaxCommentsPerDay: 20, MinHourSpread: 2, AllowedSpeedTiers: everyTier, MaxConnectionDegree: 3},
	},
	models.AgeOver2Years: {
		WarmupDays: 3,
		Steps: []Step{
			{MaxDay: 3, Config: Config{MaxActionsPerDay: 40, MaxCommentsPerDay: 10, MinHourSpread: 4, AllowedSpeedTiers: midTiers, MaxConnectionDegree: 2}},
		},
		Mature: Config{MaxActionsPerDay: 100, MaxCommentsPerDay: 25, MinHourSpread: 2, AllowedSpeedTiers: everyTier, MaxConnectionDegree: 3},
	},
}

// standardRamp eases younger accounts into their mature limits after
// warm-up: 60% for the first 30 days, 80% until day 60, then full.
var standardRamp = []RampStep{
	{MaxDaysAfter: 30, Percent: 60},
	{MaxDaysAfter: 60, Percent: 80},
}
