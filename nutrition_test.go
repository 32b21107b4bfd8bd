package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeProfile constructs a fully-populated userProfile for populateNutrition
// tests. Individual tests nil out fields to exercise missing-field guards.
func makeProfile(sex string, dob time.Time, heightCM, weightKG float64, activity, goal string) *userProfile {
	d := DateOnly{dob}
	return &userProfile{
		Sex:           &sex,
		DateOfBirth:   &d,
		HeightCM:      &heightCM,
		WeightKG:      &weightKG,
		ActivityLevel: &activity,
		Goal:          goal,
	}
}

/* ─── BMR / TDEE accuracy ────────────────────────────────────────────── */

// Reference case: male, 30y, 70kg, 175cm, sedentary.
// BMR = 88.362 + 13.397*70 + 4.799*175 - 5.677*30 ≈ 1695.7, TDEE ≈ 2034.8.
func TestCalculateNutrition_MaleReference(t *testing.T) {
	s, err := calculateNutritionSummary(bodyMetrics{
		Sex: "male", Age: 30, WeightKG: 70, HeightCM: 175, ActivityLevel: "sedentary",
	})
	require.NoError(t, err)

	assert.InDelta(t, 1695, s.BMR, 1)
	assert.InDelta(t, 2034, s.TDEE, 1)
	assert.Equal(t, s.TDEE, s.TargetCalories, "empty goal means maintain")
	assert.Equal(t, 127, s.ProteinG)
	assert.Equal(t, 229, s.CarbsG)
	assert.Equal(t, 68, s.FatG)
	assert.Equal(t, 35, s.FiberG)
	assert.Equal(t, 22.86, s.BMI)
	assert.Equal(t, "Bình thường", s.BMICategory)
}

func TestCalculateNutrition_FemaleBMR(t *testing.T) {
	s, err := calculateNutritionSummary(bodyMetrics{
		Sex: "female", Age: 30, WeightKG: 70, HeightCM: 175, ActivityLevel: "sedentary",
	})
	require.NoError(t, err)
	assert.Equal(t, 1507, s.BMR)
}

func TestCalculateNutrition_ActivityMultipliers(t *testing.T) {
	bmr := computeBMR("male", 70, 175, 30)
	for level, mult := range activityMultipliers {
		t.Run(level, func(t *testing.T) {
			s, err := calculateNutritionSummary(bodyMetrics{
				Sex: "male", Age: 30, WeightKG: 70, HeightCM: 175, ActivityLevel: level,
			})
			require.NoError(t, err)
			assert.InDelta(t, bmr*mult, float64(s.TDEE), 0.5)
		})
	}
}

func TestCalculateNutrition_GoalAdjustment(t *testing.T) {
	cases := []struct {
		goal string
		want int
	}{
		{"lose", 2234},
		{"maintain", 2628},
		{"gain", 3023},
	}
	for _, tc := range cases {
		t.Run(tc.goal, func(t *testing.T) {
			s, err := calculateNutritionSummary(bodyMetrics{
				Sex: "male", Age: 30, WeightKG: 70, HeightCM: 175, ActivityLevel: "moderate", Goal: tc.goal,
			})
			require.NoError(t, err)
			assert.Equal(t, tc.want, s.TargetCalories)
		})
	}
}

/* ─── Input validation guards ────────────────────────────────────────── */

func TestCalculateNutrition_RejectsBadInput(t *testing.T) {
	valid := bodyMetrics{Sex: "male", Age: 30, WeightKG: 70, HeightCM: 175, ActivityLevel: "light"}
	cases := []struct {
		name string
		mut  func(m *bodyMetrics)
		want error
	}{
		{"unknown activity", func(m *bodyMetrics) { m.ActivityLevel = "couch" }, errUnknownActivity},
		{"unknown goal", func(m *bodyMetrics) { m.Goal = "bulk" }, errUnknownGoal},
		{"unknown sex", func(m *bodyMetrics) { m.Sex = "other" }, errUnknownSex},
		{"zero weight", func(m *bodyMetrics) { m.WeightKG = 0 }, errBadBodyMetrics},
		{"negative age", func(m *bodyMetrics) { m.Age = -1 }, errBadBodyMetrics},
		{"age too high", func(m *bodyMetrics) { m.Age = 200 }, errBadBodyMetrics},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := valid
			tc.mut(&m)
			_, err := calculateNutritionSummary(m)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

/* ─── BMI and fiber ──────────────────────────────────────────────────── */

func TestBMICategory_Bands(t *testing.T) {
	cases := []struct {
		bmi  float64
		want string
	}{
		{16, "Thiếu cân"},
		{18.49, "Thiếu cân"},
		{18.5, "Bình thường"},
		{24.99, "Bình thường"},
		{25, "Thừa cân"},
		{29.99, "Thừa cân"},
		{30, "Béo phì"},
		{42, "Béo phì"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, bmiCategory(tc.bmi), "bmi %.2f", tc.bmi)
	}
}

func TestFiberTarget_Floor(t *testing.T) {
	assert.Equal(t, 25.0, fiberTarget(40))
	assert.Equal(t, 30.0, fiberTarget(60))
	assert.Equal(t, 45.0, fiberTarget(90))
}

/* ─── Profile integration ────────────────────────────────────────────── */

func TestAgeOn_Birthday(t *testing.T) {
	dob := time.Date(1996, 10, 20, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 29, ageOn(dob, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 30, ageOn(dob, time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)))
}

func TestPopulateNutrition_CompleteProfile(t *testing.T) {
	today := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	p := makeProfile("male", time.Date(1996, 1, 1, 0, 0, 0, 0, time.UTC), 175, 70, "sedentary", "maintain")

	populateNutrition(p, today)

	require.NotNil(t, p.Nutrition)
	assert.InDelta(t, 1695, p.Nutrition.BMR, 1)
}

// TestPopulateNutrition_MissingFields verifies that nothing is computed when
// any required profile field is nil.
func TestPopulateNutrition_MissingFields(t *testing.T) {
	cases := []struct {
		name  string
		mutFn func(p *userProfile)
	}{
		{"nil Sex", func(p *userProfile) { p.Sex = nil }},
		{"nil DateOfBirth", func(p *userProfile) { p.DateOfBirth = nil }},
		{"nil HeightCM", func(p *userProfile) { p.HeightCM = nil }},
		{"nil WeightKG", func(p *userProfile) { p.WeightKG = nil }},
		{"nil ActivityLevel", func(p *userProfile) { p.ActivityLevel = nil }},
	}
	today := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := makeProfile("female", time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC), 165, 60, "light", "lose")
			tc.mutFn(p)
			populateNutrition(p, today)
			assert.Nil(t, p.Nutrition)
		})
	}
}

// TestPopulateNutrition_FutureDOB verifies that a date of birth in the future
// (negative age) leaves the summary empty rather than producing nonsense.
func TestPopulateNutrition_FutureDOB(t *testing.T) {
	today := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	p := makeProfile("male", today.AddDate(1, 0, 0), 175, 70, "sedentary", "")
	populateNutrition(p, today)
	assert.Nil(t, p.Nutrition)
}
