package handlers

import (
	"encoding/json"
	"reflect"
	"testing"

	"food-ordering-api/catalog"
)

func TestFormJSON(t *testing.T) {
	values := map[string][]string{
		"name":           {"Margherita"},
		"price":          {"12.50"},
		"calories":       {"800"},
		"isAvailable":    {"false"},
		"allergens":      {"Dairy, Gluten"},
		"dietary":        {"Vegetarian", "Halal"},
		"customizations": {`[{"name":"Size","required":true,"options":[{"name":"Large","price":"3"}]}]`},
		"unknown":        {"ignored"},
	}
	raw, err := formJSON(values, reflect.TypeOf(catalog.MenuItemInput{}))
	if err != nil {
		t.Fatal(err)
	}
	var in catalog.MenuItemInput
	if err := json.Unmarshal(raw, &in); err != nil {
		t.Fatalf("unmarshal %s: %v", raw, err)
	}

	if in.Name != "Margherita" || in.Price == nil || in.Price.String() != "12.5" {
		t.Errorf("name/price = %q %v", in.Name, in.Price)
	}
	if in.Calories == nil || *in.Calories != 800 {
		t.Errorf("calories = %v", in.Calories)
	}
	if in.IsAvailable == nil || *in.IsAvailable {
		t.Errorf("isAvailable = %v, want explicit false", in.IsAvailable)
	}
	if !reflect.DeepEqual(in.Allergens, []string{"Dairy", "Gluten"}) {
		t.Errorf("allergens = %v", in.Allergens)
	}
	if !reflect.DeepEqual(in.Dietary, []string{"Vegetarian", "Halal"}) {
		t.Errorf("dietary = %v", in.Dietary)
	}
	if len(in.Customizations) != 1 || len(in.Customizations[0].Options) != 1 {
		t.Errorf("customizations = %+v", in.Customizations)
	}
}

func TestFormJSONQuotesStrings(t *testing.T) {
	// a numeric-looking name must stay a string
	raw, err := formJSON(map[string][]string{"name": {"42"}}, reflect.TypeOf(catalog.MenuItemInput{}))
	if err != nil {
		t.Fatal(err)
	}
	var in catalog.MenuItemInput
	if err := json.Unmarshal(raw, &in); err != nil {
		t.Fatal(err)
	}
	if in.Name != "42" {
		t.Errorf("name = %q", in.Name)
	}
}
