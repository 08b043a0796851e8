package sources

import "fmt"

// VariableType is the request-level selection of fields to assemble.
type VariableType int

const (
	VarUnknown VariableType = iota
	VarAllVariables
	VarWindPressure
	VarPressure
	VarWind
	VarPrecipitation
	VarTemperature
	VarHumidity
	VarIce
	VarPrecipitationType
)

// ParseVariableType converts a request data_type string into a VariableType.
func ParseVariableType(dataType string) (VariableType, error) {
	switch dataType {
	case "wind_pressure":
		return VarWindPressure, nil
	case "pressure":
		return VarPressure, nil
	case "wind":
		return VarWind, nil
	case "precipitation", "rain":
		return VarPrecipitation, nil
	case "temperature":
		return VarTemperature, nil
	case "humidity":
		return VarHumidity, nil
	case "ice":
		return VarIce, nil
	case "precipitation_type":
		return VarPrecipitationType, nil
	case "all_variables":
		return VarAllVariables, nil
	}
	return VarUnknown, fmt.Errorf("invalid data type: %s", dataType)
}

func (v VariableType) String() string {
	switch v {
	case VarAllVariables:
		return "all_variables"
	case VarWindPressure:
		return "wind_pressure"
	case VarPressure:
		return "pressure"
	case VarWind:
		return "wind"
	case VarPrecipitation:
		return "precipitation"
	case VarTemperature:
		return "temperature"
	case VarHumidity:
		return "humidity"
	case VarIce:
		return "ice"
	case VarPrecipitationType:
		return "precipitation_type"
	}
	return "unknown"
}

// Select expands the selection into the concrete data types it covers.
func (v VariableType) Select() []MetDataType {
	switch v {
	case VarWindPressure:
		return []MetDataType{Pressure, WindU, WindV}
	case VarPressure:
		return []MetDataType{Pressure}
	case VarWind:
		return []MetDataType{WindU, WindV}
	case VarPrecipitation:
		return []MetDataType{Precipitation}
	case VarTemperature:
		return []MetDataType{Temperature}
	case VarHumidity:
		return []MetDataType{Humidity}
	case VarIce:
		return []MetDataType{Ice}
	case VarPrecipitationType:
		return []MetDataType{CategoricalRain, CategoricalSnow, CategoricalIce, CategoricalFreezingRain}
	case VarAllVariables:
		return AllDataTypes()
	}
	return nil
}
