// Package pipeline turns trained feature pipelines into price estimates.
package pipeline

import (
	"fmt"

	"houseprice/ml"
)

const (
	General   = "general"
	Bengaluru = "bengaluru"

	TargetColumn = "Price_in_Lakhs"
)

// BengaluruFilter selects listings whose City mentions Bangalore, in any case.
const BengaluruFilter = `"City" in row && row["City"].matches("(?i)bangalore")`

// Definition 管道定义
type Definition struct {
	ID     string
	Table  ml.FeatureTable
	Target string
	// Required columns must be present for a row to be used in training.
	Required []string
	// Filter is a CEL row predicate. Empty keeps every row.
	Filter string
	// FallbackSample rows are drawn when Filter matches nothing, with
	// FallbackColumn overwritten by FallbackValue.
	FallbackSample int
	FallbackColumn string
	FallbackValue  string
	// Placeholders are columns served as constants rather than from input.
	Placeholders []string
	Message      string
	ErrorMessage string
}

// Format renders the success message for a rounded estimate.
func (d Definition) Format(price float64) string {
	return fmt.Sprintf(d.Message, price)
}

// GeneralDefinition is the all-India pipeline.
func GeneralDefinition() Definition {
	numerical := []ml.FeatureSpec{
		{Column: "BHK", Field: "bhk", Default: "2"},
		{Column: "Size_in_SqFt", Field: "size", Default: "1000"},
		{Column: "Price_per_SqFt", Derive: ml.Constant(ml.PricePerSqftPlaceholder)},
		{Column: "Year_Built", Field: "year_built", Default: "2010"},
		{Column: "Floor_No", Field: "floor_no", Default: "1"},
		{Column: "Total_Floors", Field: "total_floors", Default: "5"},
		{Column: "Age_of_Property", Derive: ml.AgeFrom("Year_Built")},
		{Column: "Nearby_Schools", Field: "nearby_schools", Default: "5"},
		{Column: "Nearby_Hospitals", Field: "nearby_hospitals", Default: "3"},
	}

	return Definition{
		ID: General,
		Table: ml.FeatureTable{
			Numerical: numerical,
			Categorical: []ml.FeatureSpec{
				{Column: "State", Field: "state", Default: "Maharashtra"},
				{Column: "Property_Type", Field: "property_type", Default: "Apartment"},
				{Column: "Furnished_Status", Field: "furnished_status", Default: "Semi-furnished"},
				{Column: "Public_Transport_Accessibility", Field: "transport", Default: "Medium"},
				{Column: "Parking_Space", Field: "parking", Default: "Yes"},
				{Column: "Security", Field: "security", Default: "Yes"},
				{Column: "Facing", Field: "facing", Default: "North"},
				{Column: "Owner_Type", Field: "owner_type", Default: "Owner"},
				{Column: "Availability_Status", Field: "availability", Default: "Ready_to_Move"},
			},
		},
		Target:       TargetColumn,
		Required:     []string{TargetColumn, "Size_in_SqFt", "BHK"},
		Placeholders: []string{"Price_per_SqFt"},
		Message:      "Predicted house price: ₹%.2f Lakhs",
		ErrorMessage: "Error in prediction. Please check your inputs.",
	}
}

// BengaluruDefinition is the city pipeline trained on the Bangalore subset.
func BengaluruDefinition() Definition {
	return Definition{
		ID: Bengaluru,
		Table: ml.FeatureTable{
			Numerical: []ml.FeatureSpec{
				{Column: "BHK", Field: "bhk", Default: "2"},
				{Column: "Size_in_SqFt", Field: "size", Default: "1000"},
				{Column: "Year_Built", Field: "year_built", Default: "2010"},
				{Column: "Floor_No", Field: "floor_no", Default: "1"},
				{Column: "Total_Floors", Field: "total_floors", Default: "5"},
				{Column: "Age_of_Property", Derive: ml.AgeFrom("Year_Built")},
				{Column: "Nearby_Schools", Field: "nearby_schools", Default: "5"},
				{Column: "Nearby_Hospitals", Field: "nearby_hospitals", Default: "3"},
			},
			Categorical: []ml.FeatureSpec{
				{Column: "Property_Type", Field: "property_type", Default: "Apartment"},
				{Column: "Furnished_Status", Field: "furnished_status", Default: "Semi-furnished"},
				{Column: "Locality", Field: "locality", Default: "Koramangala"},
				{Column: "Public_Transport_Accessibility", Field: "transport", Default: "High"},
				{Column: "Parking_Space", Field: "parking", Default: "Yes"},
				{Column: "Security", Field: "security", Default: "Yes"},
			},
		},
		Target:         TargetColumn,
		Required:       []string{TargetColumn, "Size_in_SqFt", "BHK"},
		Filter:         BengaluruFilter,
		FallbackSample: 5000,
		FallbackColumn: "City",
		FallbackValue:  "Bangalore",
		Message:        "Predicted Bengaluru house price: ₹%.2f Lakhs",
		ErrorMessage:   "Error in Bengaluru prediction. Please check your inputs.",
	}
}

// Definitions returns every built-in pipeline.
func Definitions() []Definition {
	return []Definition{GeneralDefinition(), BengaluruDefinition()}
}

// BengaluruLocalities is the locality list offered by the city form.
var BengaluruLocalities = []string{
	"Koramangala", "Indiranagar", "Whitefield", "Electronic City", "HSR Layout",
	"Marathahalli", "Sarjapur Road", "Bannerghatta Road", "Hebbal", "Yeshwanthpur",
}
