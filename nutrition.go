package main

import (
	"errors"
	"math"
	"time"
)

// activityMultipliers maps activity level strings to their TDEE multiplier.
// This is the single source of truth for valid activity levels; also used for
// input validation in patchProfile and calculateNutrition.
var activityMultipliers = map[string]float64{
	"sedentary":   1.2,
	"light":       1.375,
	"moderate":    1.55,
	"active":      1.725,
	"very_active": 1.9,
}

// goalAdjustments scales TDEE into a daily calorie target.
var goalAdjustments = map[string]float64{
	"lose":     0.85,
	"maintain": 1.0,
	"gain":     1.15,
}

// Macro split of the calorie target and energy density per gram.
const (
	proteinShare    = 0.25
	carbsShare      = 0.45
	fatShare        = 0.30
	kcalPerGProt    = 4
	kcalPerGCarbs   = 4
	kcalPerGFat     = 9
	minFiberG       = 25
	fiberGPerKG     = 0.5
	maxPlausibleAge = 130
)

var (
	errUnknownActivity = errors.New("activity_level must be one of: sedentary, light, moderate, active, very_active")
	errUnknownGoal     = errors.New("goal must be one of: lose, maintain, gain")
	errUnknownSex      = errors.New("sex must be male or female")
	errBadBodyMetrics  = errors.New("age, weight_kg and height_cm must be positive")
)

// bodyMetrics is the input to the calculator, from a request or a stored profile.
type bodyMetrics struct {
	Sex           string
	Age           int
	WeightKG      float64
	HeightCM      float64
	ActivityLevel string
	Goal          string
}

// nutritionSummary is the calculator output. Energy values are whole kcal,
// macros whole grams, BMI two decimals.
type nutritionSummary struct {
	BMR            int     `json:"bmr"`
	TDEE           int     `json:"tdee"`
	TargetCalories int     `json:"target_calories"`
	ProteinG       int     `json:"protein_g"`
	CarbsG         int     `json:"carbs_g"`
	FatG           int     `json:"fat_g"`
	FiberG         int     `json:"fiber_g"`
	BMI            float64 `json:"bmi"`
	BMICategory    string  `json:"bmi_category"`
}

// computeBMR uses the revised Harris-Benedict equation (kcal/day).
func computeBMR(sex string, weightKG, heightCM float64, age int) float64 {
	if sex == "male" {
		return 88.362 + 13.397*weightKG + 4.799*heightCM - 5.677*float64(age)
	}
	return 447.593 + 9.247*weightKG + 3.098*heightCM - 4.330*float64(age)
}

// computeBMI returns kg/m², rounded to two decimals.
func computeBMI(weightKG, heightCM float64) float64 {
	if heightCM <= 0 {
		return 0
	}
	m := heightCM / 100
	return math.Round(weightKG/(m*m)*100) / 100
}

// bmiCategory buckets a BMI value into the labels shown in the app.
func bmiCategory(bmi float64) string {
	switch {
	case bmi < 18.5:
		return "Thiếu cân"
	case bmi < 25:
		return "Bình thường"
	case bmi < 30:
		return "Thừa cân"
	default:
		return "Béo phì"
	}
}

// fiberTarget is 0.5 g per kg of body weight with a 25 g floor.
func fiberTarget(weightKG float64) float64 {
	return math.Max(minFiberG, fiberGPerKG*weightKG)
}

// calculateNutritionSummary runs the full calculator. An empty goal means maintain.
func calculateNutritionSummary(m bodyMetrics) (nutritionSummary, error) {
	if m.Sex != "male" && m.Sex != "female" {
		return nutritionSummary{}, errUnknownSex
	}
	if m.Age <= 0 || m.Age > maxPlausibleAge || m.WeightKG <= 0 || m.HeightCM <= 0 {
		return nutritionSummary{}, errBadBodyMetrics
	}
	mult, ok := activityMultipliers[m.ActivityLevel]
	if !ok {
		return nutritionSummary{}, errUnknownActivity
	}
	goal := m.Goal
	if goal == "" {
		goal = "maintain"
	}
	adj, ok := goalAdjustments[goal]
	if !ok {
		return nutritionSummary{}, errUnknownGoal
	}

	bmr := computeBMR(m.Sex, m.WeightKG, m.HeightCM, m.Age)
	tdee := bmr * mult
	target := tdee * adj
	bmi := computeBMI(m.WeightKG, m.HeightCM)

	return nutritionSummary{
		BMR:            int(math.Round(bmr)),
		TDEE:           int(math.Round(tdee)),
		TargetCalories: int(math.Round(target)),
		ProteinG:       int(math.Round(target * proteinShare / kcalPerGProt)),
		CarbsG:         int(math.Round(target * carbsShare / kcalPerGCarbs)),
		FatG:           int(math.Round(target * fatShare / kcalPerGFat)),
		FiberG:         int(math.Round(fiberTarget(m.WeightKG))),
		BMI:            bmi,
		BMICategory:    bmiCategory(bmi),
	}, nil
}

// ageOn returns whole years between dob and today.
func ageOn(dob, today time.Time) int {
	age := today.Year() - dob.Year()
	if today.Before(dob.AddDate(age, 0, 0)) {
		age--
	}
	return age
}

// profileMetrics extracts calculator input from a stored profile. ok=false
// when any body field is missing.
func profileMetrics(p *userProfile, today time.Time) (bodyMetrics, bool) {
	if p.Sex == nil || p.DateOfBirth == nil || p.HeightCM == nil ||
		p.WeightKG == nil || p.ActivityLevel == nil {
		return bodyMetrics{}, false
	}
	return bodyMetrics{
		Sex:           *p.Sex,
		Age:           ageOn(p.DateOfBirth.Time, today),
		WeightKG:      *p.WeightKG,
		HeightCM:      *p.HeightCM,
		ActivityLevel: *p.ActivityLevel,
		Goal:          p.Goal,
	}, true
}

// populateNutrition fills p.Nutrition from the profile. No-ops if any field
// is missing or implausible.
func populateNutrition(p *userProfile, today time.Time) {
	m, ok := profileMetrics(p, today)
	if !ok {
		return
	}
	if s, err := calculateNutritionSummary(m); err == nil {
		p.Nutrition = &s
	}
}
