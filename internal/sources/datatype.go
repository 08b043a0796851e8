// Package sources holds the registry of meteorological data sources and the
// vocabulary of variables they provide.
package sources

// MetDataType identifies a single meteorological field.
type MetDataType int

const (
	Unknown MetDataType = iota
	Pressure
	WindU
	WindV
	Temperature
	Humidity
	Precipitation
	Ice
	CategoricalRain
	CategoricalSnow
	CategoricalIce
	CategoricalFreezingRain
	SurfaceStressU
	SurfaceStressV
	SurfaceLatentHeatFlux
	SurfaceSensibleHeatFlux
	SurfaceLongwaveFlux
	SurfaceSolarFlux
	SurfaceNetRadiationFlux
)

var dataTypeNames = map[MetDataType]string{
	Pressure:                "pressure",
	WindU:                   "wind_u",
	WindV:                   "wind_v",
	Temperature:             "temperature",
	Humidity:                "humidity",
	Precipitation:           "precipitation",
	Ice:                     "ice",
	CategoricalRain:         "categorical_rain",
	CategoricalSnow:         "categorical_snow",
	CategoricalIce:          "categorical_ice",
	CategoricalFreezingRain: "categorical_freezing_rain",
	SurfaceStressU:          "surface_stress_u",
	SurfaceStressV:          "surface_stress_v",
	SurfaceLatentHeatFlux:   "surface_latent_heat_flux",
	SurfaceSensibleHeatFlux: "surface_sensible_heat_flux",
	SurfaceLongwaveFlux:     "surface_longwave_flux",
	SurfaceSolarFlux:        "surface_solar_flux",
	SurfaceNetRadiationFlux: "surface_net_radiation_flux",
}

func (t MetDataType) String() string {
	if s, ok := dataTypeNames[t]; ok {
		return s
	}
	return "unknown"
}

// CFLongName returns the descriptive name written to NetCDF output.
func (t MetDataType) CFLongName() string {
	switch t {
	case Pressure:
		return "air pressure at sea level"
	case WindU:
		return "e/w wind velocity"
	case WindV:
		return "n/s wind velocity"
	case Temperature:
		return "air temperature at sea level"
	case Humidity:
		return "specific humidity"
	case Precipitation:
		return "precipitation rate"
	case Ice:
		return "ice depth"
	case CategoricalRain:
		return "categorical rain"
	case CategoricalSnow:
		return "categorical snow"
	case CategoricalIce:
		return "categorical ice pellets"
	case CategoricalFreezingRain:
		return "categorical freezing rain"
	case SurfaceStressU:
		return "eastward surface stress"
	case SurfaceStressV:
		return "northward surface stress"
	case SurfaceLatentHeatFlux:
		return "surface latent heat flux"
	case SurfaceSensibleHeatFlux:
		return "surface sensible heat flux"
	case SurfaceLongwaveFlux:
		return "surface longwave radiation flux"
	case SurfaceSolarFlux:
		return "surface solar radiation flux"
	case SurfaceNetRadiationFlux:
		return "surface net radiation flux"
	}
	return "unknown"
}

// CFStandardName returns the CF standard_name attribute value.
func (t MetDataType) CFStandardName() string {
	switch t {
	case Pressure:
		return "air_pressure_at_sea_level"
	case WindU:
		return "eastward_wind"
	case WindV:
		return "northward_wind"
	case Temperature:
		return "air_temperature_at_sea_level"
	case Humidity:
		return "specific_humidity"
	case Precipitation:
		return "precipitation_rate"
	case Ice:
		return "ice_depth"
	case CategoricalRain:
		return "categorical_rain"
	case CategoricalSnow:
		return "categorical_snow"
	case CategoricalIce:
		return "categorical_ice_pellets"
	case CategoricalFreezingRain:
		return "categorical_freezing_rain"
	case SurfaceStressU:
		return "eastward_surface_stress"
	case SurfaceStressV:
		return "northward_surface_stress"
	case SurfaceLatentHeatFlux:
		return "surface_latent_heat_flux"
	case SurfaceSensibleHeatFlux:
		return "surface_sensible_heat_flux"
	case SurfaceLongwaveFlux:
		return "surface_longwave_radiation_flux"
	case SurfaceSolarFlux:
		return "surface_solar_radiation_flux"
	case SurfaceNetRadiationFlux:
		return "surface_net_radiation_flux"
	}
	return "unknown"
}

// Units returns the units the field carries after decode scaling.
func (t MetDataType) Units() string {
	switch t {
	case Pressure:
		return "mb"
	case WindU, WindV:
		return "m/s"
	case Temperature:
		return "C"
	case Humidity:
		return "kg/kg"
	case Precipitation:
		return "mm/hr"
	case Ice:
		return "m"
	case CategoricalRain, CategoricalSnow, CategoricalIce, CategoricalFreezingRain:
		return "1"
	case SurfaceStressU, SurfaceStressV,
		SurfaceLatentHeatFlux, SurfaceSensibleHeatFlux,
		SurfaceLongwaveFlux, SurfaceSolarFlux, SurfaceNetRadiationFlux:
		return "W/m^2"
	}
	return "unknown"
}

// NetCDFVarName returns the variable name used in CF-NetCDF output.
func (t MetDataType) NetCDFVarName() string {
	switch t {
	case Pressure:
		return "mslp"
	case CategoricalRain:
		return "crain"
	case CategoricalSnow:
		return "csnow"
	case CategoricalIce:
		return "cice"
	case CategoricalFreezingRain:
		return "cfrzr"
	}
	return t.String()
}

// OWIVarName returns the variable name used in OWI-NetCDF output groups.
func (t MetDataType) OWIVarName() string {
	switch t {
	case Pressure:
		return "PSFC"
	case WindU:
		return "U10"
	case WindV:
		return "V10"
	case Temperature:
		return "TEMP"
	case Humidity:
		return "RH"
	case Precipitation:
		return "PRCP"
	case Ice:
		return "ICE"
	case CategoricalRain:
		return "CRAIN"
	case CategoricalSnow:
		return "CSNOW"
	case CategoricalIce:
		return "CICE"
	case CategoricalFreezingRain:
		return "CFRZR"
	}
	return ""
}

// DefaultValue is written where no source contributed data and the request
// did not ask for fill-value backfill.
func (t MetDataType) DefaultValue() float64 {
	switch t {
	case Pressure:
		return 1013.0
	case Temperature:
		return 20.0
	}
	return 0.0
}

// FillValue is the sentinel written for intentionally missing data.
func (t MetDataType) FillValue() float64 {
	return -999.0
}

// AllDataTypes returns every concrete data type.
func AllDataTypes() []MetDataType {
	out := make([]MetDataType, 0, int(SurfaceNetRadiationFlux))
	for t := Pressure; t <= SurfaceNetRadiationFlux; t++ {
		out = append(out, t)
	}
	return out
}
