package storage

func DefaultReviewSchedules() []ReviewSchedule {
	return []ReviewSchedule{
		{Stage: 1, IntervalDays: 1, Description: "Next day - Initial consolidation"},
		{Stage: 2, IntervalDays: 3, Description: "Day 3 - Critical memory cliff"},
		{Stage: 3, IntervalDays: 7, Description: "Week 1 - Short-term retention test"},
		{Stage: 4, IntervalDays: 14, Description: "Week 2 - Medium-term retention"},
		{Stage: 5, IntervalDays: 30, Description: "Month 1 - Long-term memory formation"},
		{Stage: 6, IntervalDays: 60, Description: "Month 2 - Deep long-term retention"},
		{Stage: 7, IntervalDays: 120, Description: "Month 4 - Permanent memory test"},
		{Stage: 8, IntervalDays: 240, Description: "Month 8 - Master level retention"},
	}
}

func DefaultForgettingPatterns() []ForgettingPattern {
	return []ForgettingPattern{
		// first time
		{StageForgotten: 1, TimesForgotten: 1, ResetIntervalDays: 1, IntensiveReviewCount: 2, RecoveryNotes: "Forgot at 1-day mark: Pattern not consolidated - restart with 2 daily intensive reviews"},
		{StageForgotten: 2, TimesForgotten: 1, ResetIntervalDays: 1, IntensiveReviewCount: 3, RecoveryNotes: "Forgot at 3-day critical cliff: Memory pathway weak - needs 3 daily intensive reviews"},
		{StageForgotten: 3, TimesForgotten: 1, ResetIntervalDays: 2, IntensiveReviewCount: 2, RecoveryNotes: "Forgot at 7-day mark: Interference likely - moderate reset with 2 intensive reviews"},
		{StageForgotten: 4, TimesForgotten: 1, ResetIntervalDays: 3, IntensiveReviewCount: 2, RecoveryNotes: "Forgot at 14-day mark: Pattern confusion - 3-day reset with reinforcement"},
		{StageForgotten: 5, TimesForgotten: 1, ResetIntervalDays: 7, IntensiveReviewCount: 1, RecoveryNotes: "Forgot at 30-day mark: Long-term memory issue - weekly reset"},
		{StageForgotten: 6, TimesForgotten: 1, ResetIntervalDays: 14, IntensiveReviewCount: 1, RecoveryNotes: "Forgot at 60+ day mark: Deep pattern forgotten - bi-weekly reset"},

		// second time
		{StageForgotten: 1, TimesForgotten: 2, ResetIntervalDays: 1, IntensiveReviewCount: 4, RecoveryNotes: "Second 1-day failure: Serious consolidation problem - 4 daily intensive reviews needed"},
		{StageForgotten: 2, TimesForgotten: 2, ResetIntervalDays: 1, IntensiveReviewCount: 5, RecoveryNotes: "Second 3-day failure: Major memory pathway issue - 5 daily intensive cycles"},
		{StageForgotten: 3, TimesForgotten: 2, ResetIntervalDays: 2, IntensiveReviewCount: 3, RecoveryNotes: "Second 7-day failure: Pattern interference - extended intensive period"},
		{StageForgotten: 4, TimesForgotten: 2, ResetIntervalDays: 3, IntensiveReviewCount: 3, RecoveryNotes: "Second 14-day failure: Conceptual confusion - daily reviews for 3 days"},

		// third and later
		{StageForgotten: 1, TimesForgotten: 3, ResetIntervalDays: 1, IntensiveReviewCount: 6, RecoveryNotes: "Third+ 1-day failure: CRITICAL - needs pattern re-learning with 6 daily intensive reviews"},
		{StageForgotten: 2, TimesForgotten: 3, ResetIntervalDays: 1, IntensiveReviewCount: 8, RecoveryNotes: "Third+ 3-day failure: CRITICAL - complete pattern breakdown, 8 daily intensive cycles"},
		{StageForgotten: 3, TimesForgotten: 3, ResetIntervalDays: 1, IntensiveReviewCount: 5, RecoveryNotes: "Third+ 7-day failure: CRITICAL - fundamental pattern confusion, daily practice needed"},
		{StageForgotten: 4, TimesForgotten: 3, ResetIntervalDays: 2, IntensiveReviewCount: 4, RecoveryNotes: "Third+ 14-day failure: CRITICAL - needs structured daily pattern study"},
	}
}
