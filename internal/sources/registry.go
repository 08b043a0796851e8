package sources

import "fmt"

func wind10m() (Variable, Variable) {
	u := Variable{Type: WindU, LongName: "UGRD:10 m above ground", VarName: "u10", GribName: "10u", Scale: 1.0}
	v := Variable{Type: WindV, LongName: "VGRD:10 m above ground", VarName: "v10", GribName: "10v", Scale: 1.0}
	return u, v
}

var gfsNCEP = &Service{
	Name:   "gfs-ncep",
	Table:  "gfs_ncep",
	Format: FormatGRIB,
	Bucket: "noaa-gfs-bdp-pds",
	Cycles: []int{0, 6, 12, 18},
	Variables: map[MetDataType]Variable{
		WindU:         {Type: WindU, LongName: "UGRD:10 m above ground", VarName: "u10", GribName: "10u", Scale: 1.0},
		WindV:         {Type: WindV, LongName: "VGRD:10 m above ground", VarName: "v10", GribName: "10v", Scale: 1.0},
		Pressure:      {Type: Pressure, LongName: "PRMSL", VarName: "prmsl", GribName: "prmsl", Scale: 0.01},
		Ice:           {Type: Ice, LongName: "ICEC:surface", VarName: "icec", GribName: "icec", Scale: 1.0},
		Precipitation: {Type: Precipitation, LongName: "PRATE", VarName: "prate", GribName: "prate", Scale: 3600.0},
		Humidity:      {Type: Humidity, LongName: "RH:30-0 mb above ground", VarName: "rh", GribName: "r", Scale: 1.0},
		Temperature:   {Type: Temperature, LongName: "TMP:30-0 mb above ground", VarName: "tmp", GribName: "t", Scale: 1.0},
	},
}

var namNCEP = &Service{
	Name:   "nam-ncep",
	Table:  "nam_ncep",
	Format: FormatGRIB,
	Bucket: "noaa-nam-pds",
	Cycles: []int{0, 6, 12, 18},
	Variables: map[MetDataType]Variable{
		WindU:         {Type: WindU, LongName: "UGRD:10 m above ground", VarName: "u10", GribName: "10u", Scale: 1.0},
		WindV:         {Type: WindV, LongName: "VGRD:10 m above ground", VarName: "v10", GribName: "10v", Scale: 1.0},
		Pressure:      {Type: Pressure, LongName: "PRMSL", VarName: "prmsl", GribName: "prmsl", Scale: 0.01},
		Precipitation: {Type: Precipitation, LongName: "ACPCP", VarName: "acpcp", GribName: "acpcp", Scale: 3600.0, IsAccumulated: true},
		Humidity:      {Type: Humidity, LongName: "RH:30-0 mb above ground", VarName: "rh", GribName: "r", Scale: 1.0},
		Temperature:   {Type: Temperature, LongName: "TMP:30-0 mb above ground", VarName: "tmp", GribName: "t", Scale: 1.0},
	},
}

func gefsMembers() []string {
	members := []string{"avg", "c00"}
	for i := 1; i <= 30; i++ {
		members = append(members, fmt.Sprintf("p%02d", i))
	}
	return members
}

var gefsNCEP = &Service{
	Name:            "gefs-ncep",
	Table:           "gefs_ncep",
	Format:          FormatGRIB,
	Bucket:          "noaa-gefs-pds",
	Cycles:          []int{0, 6, 12, 18},
	EnsembleMembers: gefsMembers(),
	Variables: map[MetDataType]Variable{
		WindU:         {Type: WindU, LongName: "UGRD:10 m above ground", VarName: "u10", GribName: "10u", Scale: 1.0},
		WindV:         {Type: WindV, LongName: "VGRD:10 m above ground", VarName: "v10", GribName: "10v", Scale: 1.0},
		Pressure:      {Type: Pressure, LongName: "PRMSL", VarName: "prmsl", GribName: "prmsl", Scale: 0.01},
		Ice:           {Type: Ice, LongName: "ICETK:surface", VarName: "icec", GribName: "icec", Scale: 1.0},
		Precipitation: {Type: Precipitation, LongName: "APCP:surface", VarName: "tp", GribName: "tp", Scale: 3600.0, IsAccumulated: true},
	},
}

func rrfsVariables() map[MetDataType]Variable {
	return map[MetDataType]Variable{
		WindU:                   {Type: WindU, LongName: "UGRD:10 m above ground", VarName: "u10", GribName: "10u", Scale: 1.0},
		WindV:                   {Type: WindV, LongName: "VGRD:10 m above ground", VarName: "v10", GribName: "10v", Scale: 1.0},
		Pressure:                {Type: Pressure, LongName: "PRES:surface", VarName: "sp", GribName: "sp", Scale: 0.01},
		Ice:                     {Type: Ice, LongName: "ICEC:surface", VarName: "icec", GribName: "siconc", Scale: 1.0},
		Precipitation:           {Type: Precipitation, LongName: "PRATE", VarName: "prate", GribName: "prate", Scale: 3600.0, SkipTauZero: true},
		Humidity:                {Type: Humidity, LongName: "RH:2 m above ground", VarName: "rh", GribName: "r2", Scale: 1.0},
		Temperature:             {Type: Temperature, LongName: "TMP:2 m above ground", VarName: "tmp", GribName: "t2m", Scale: 1.0},
		CategoricalRain:         {Type: CategoricalRain, LongName: "CRAIN:surface", VarName: "crain", GribName: "crain", Scale: 1.0},
		CategoricalIce:          {Type: CategoricalIce, LongName: "CICEP:surface", VarName: "cicep", GribName: "cicep", Scale: 1.0},
		CategoricalSnow:         {Type: CategoricalSnow, LongName: "CSNOW:surface", VarName: "csnow", GribName: "csnow", Scale: 1.0},
		CategoricalFreezingRain: {Type: CategoricalFreezingRain, LongName: "CFRZR:surface", VarName: "cfrzr", GribName: "cfrzr", Scale: 1.0},
	}
}

var rrfsNCEP = &Service{
	Name:      "rrfs",
	Table:     "rrfs_ncep",
	Format:    FormatGRIB,
	Bucket:    "noaa-rrfs-pds",
	Cycles:    hourlyCycles(),
	Variables: rrfsVariables(),
}

var refsNCEP = &Service{
	Name:            "refs",
	Table:           "refs_ncep",
	Format:          FormatGRIB,
	Bucket:          "noaa-rrfs-pds",
	Cycles:          []int{0, 6, 12, 18},
	EnsembleMembers: []string{"m001", "m002", "m003", "m004", "m005"},
	Variables:       rrfsVariables(),
}

func hourlyCycles() []int {
	cycles := make([]int, 24)
	for i := range cycles {
		cycles[i] = i
	}
	return cycles
}

func hrrrVariables() map[MetDataType]Variable {
	return map[MetDataType]Variable{
		WindU:         {Type: WindU, LongName: "UGRD:10 m above ground", VarName: "u10", GribName: "10u", Scale: 1.0},
		WindV:         {Type: WindV, LongName: "VGRD:10 m above ground", VarName: "v10", GribName: "10v", Scale: 1.0},
		Pressure:      {Type: Pressure, LongName: "MSLMA:mean sea level", VarName: "mslma", GribName: "mslma", Scale: 0.01},
		Ice:           {Type: Ice, LongName: "ICEC:surface", VarName: "icec", GribName: "icec", Scale: 1.0},
		Precipitation: {Type: Precipitation, LongName: "PRATE", VarName: "prate", GribName: "prate", Scale: 3600.0, SkipTauZero: true},
		Humidity:      {Type: Humidity, LongName: "RH:2 m above ground", VarName: "rh", GribName: "2r", Scale: 1.0},
		Temperature:   {Type: Temperature, LongName: "TMP:2 m above ground", VarName: "tmp", GribName: "2t", Scale: 1.0},
	}
}

var hrrrConus = &Service{
	Name:      "hrrr-conus",
	Table:     "hrrr_ncep",
	Format:    FormatGRIB,
	Bucket:    "noaa-hrrr-bdp-pds",
	Cycles:    hourlyCycles(),
	Variables: hrrrVariables(),
}

var hrrrAlaska = &Service{
	Name:      "hrrr-alaska",
	Table:     "hrrr_alaska_ncep",
	Format:    FormatGRIB,
	Bucket:    "noaa-hrrr-bdp-pds",
	Cycles:    hourlyCycles(),
	Variables: hrrrVariables(),
}

var hwrf = &Service{
	Name:        "hwrf",
	Table:       "hwrf",
	Format:      FormatGRIB,
	Cycles:      []int{0, 6, 12, 18},
	StormScoped: true,
	Variables: map[MetDataType]Variable{
		WindU:         {Type: WindU, LongName: "UGRD:10 m above ground", VarName: "u10", GribName: "10u", Scale: 1.0},
		WindV:         {Type: WindV, LongName: "VGRD:10 m above ground", VarName: "v10", GribName: "10v", Scale: 1.0},
		Pressure:      {Type: Pressure, LongName: "PRMSL", VarName: "prmsl", GribName: "prmsl", Scale: 0.01},
		Precipitation: {Type: Precipitation, LongName: "APCP", VarName: "apcp", GribName: "apcp", Scale: 3600.0, IsAccumulated: true},
		Humidity:      {Type: Humidity, LongName: "RH:30-0 mb above ground", VarName: "rh", GribName: "r", Scale: 1.0},
		Temperature:   {Type: Temperature, LongName: "TMP:30-0 mb above ground", VarName: "tmp", GribName: "t", Scale: 1.0},
	},
}

var wpcNCEP = &Service{
	Name:   "wpc-ncep",
	Table:  "wpc_ncep",
	Format: FormatGRIB,
	Cycles: []int{0, 6, 12, 18},
	Variables: map[MetDataType]Variable{
		Precipitation: {Type: Precipitation, LongName: "APCP", VarName: "tp", GribName: "tp", Scale: 3600.0, IsAccumulated: true, AccumulationTime: 21600},
	},
}

func hafsVariables() map[MetDataType]Variable {
	return map[MetDataType]Variable{
		WindU:         {Type: WindU, LongName: "UGRD:10 m above ground", VarName: "u10", GribName: "10u", Scale: 1.0},
		WindV:         {Type: WindV, LongName: "VGRD:10 m above ground", VarName: "v10", GribName: "10v", Scale: 1.0},
		Pressure:      {Type: Pressure, LongName: "PRMSL", VarName: "prmsl", GribName: "prmsl", Scale: 0.01},
		Precipitation: {Type: Precipitation, LongName: "PRATE", VarName: "prate", GribName: "prate", Scale: 3600.0},
		Humidity:      {Type: Humidity, LongName: "RH:2 m above ground", VarName: "r2", GribName: "2r", Scale: 1.0},
		Temperature:   {Type: Temperature, LongName: "TMP:2 m above ground", VarName: "t2m", GribName: "2t", Scale: 1.0},
	}
}

var hafsA = &Service{
	Name:        "ncep-hafs-a",
	Table:       "ncep_hafs_a",
	Format:      FormatGRIB,
	Bucket:      "noaa-nws-hafs-pds",
	Cycles:      []int{0, 6, 12, 18},
	StormScoped: true,
	Variables:   hafsVariables(),
}

var hafsB = &Service{
	Name:        "ncep-hafs-b",
	Table:       "ncep_hafs_b",
	Format:      FormatGRIB,
	Bucket:      "noaa-nws-hafs-pds",
	Cycles:      []int{0, 6, 12, 18},
	StormScoped: true,
	Variables:   hafsVariables(),
}

func coampsVariables() map[MetDataType]Variable {
	return map[MetDataType]Variable{
		WindU:                   {Type: WindU, LongName: "U component of wind", VarName: "uuwind", Scale: 1.0},
		WindV:                   {Type: WindV, LongName: "V component of wind", VarName: "vvwind", Scale: 1.0},
		Pressure:                {Type: Pressure, LongName: "Sea level pressure", VarName: "slpres", Scale: 1.0},
		Precipitation:           {Type: Precipitation, LongName: "Hourly precipitation", VarName: "precip", Scale: 1.0, SkipTauZero: true},
		Humidity:                {Type: Humidity, LongName: "Relative humidity", VarName: "relhum", Scale: 1.0},
		Temperature:             {Type: Temperature, LongName: "Temperature", VarName: "airtmp", Scale: 1.0},
		SurfaceStressU:          {Type: SurfaceStressU, LongName: "sfc u stress", VarName: "stresu", Scale: 1.0, IsAccumulated: true},
		SurfaceStressV:          {Type: SurfaceStressV, LongName: "sfc v stress", VarName: "stresv", Scale: 1.0, IsAccumulated: true},
		SurfaceLatentHeatFlux:   {Type: SurfaceLatentHeatFlux, LongName: "sfc latent heat flux", VarName: "lahflx", Scale: 1.0, IsAccumulated: true},
		SurfaceSensibleHeatFlux: {Type: SurfaceSensibleHeatFlux, LongName: "sfc sensible heat flux", VarName: "sehflx", Scale: 1.0, IsAccumulated: true},
		SurfaceLongwaveFlux:     {Type: SurfaceLongwaveFlux, LongName: "sfc longwave flux", VarName: "lonflx", Scale: 1.0, IsAccumulated: true},
		SurfaceSolarFlux:        {Type: SurfaceSolarFlux, LongName: "sfc solar flux", VarName: "solflx", Scale: 1.0, IsAccumulated: true},
		SurfaceNetRadiationFlux: {Type: SurfaceNetRadiationFlux, LongName: "sfc net radiation flux", VarName: "nradfl", Scale: 1.0, IsAccumulated: true},
	}
}

var coampsTC = &Service{
	Name:        "coamps-tc",
	Table:       "coamps_tc",
	Format:      FormatCOAMPSNetCDF,
	Cycles:      []int{0, 6, 12, 18},
	StormScoped: true,
	Variables:   coampsVariables(),
}

var coampsCTCX = &Service{
	Name:            "coamps-ctcx",
	Table:           "coamps_ctcx",
	Format:          FormatCOAMPSNetCDF,
	Cycles:          []int{0, 6, 12, 18},
	StormScoped:     true,
	EnsembleMembers: ctcxMembers(),
	Variables:       coampsVariables(),
}

func ctcxMembers() []string {
	members := make([]string, 0, 21)
	for i := 0; i <= 20; i++ {
		members = append(members, fmt.Sprintf("%02d", i))
	}
	return members
}

var nhc = &Service{
	Name:        "nhc",
	Table:       "nhc",
	Format:      FormatATCF,
	StormScoped: true,
}

var serviceRegistry = map[string]*Service{
	"gfs-ncep":    gfsNCEP,
	"nam-ncep":    namNCEP,
	"gefs-ncep":   gefsNCEP,
	"rrfs":        rrfsNCEP,
	"refs":        refsNCEP,
	"hrrr-conus":  hrrrConus,
	"hrrr-alaska": hrrrAlaska,
	"hwrf":        hwrf,
	"wpc-ncep":    wpcNCEP,
	"ncep-hafs-a": hafsA,
	"ncep-hafs-b": hafsB,
	"coamps-tc":   coampsTC,
	"coamps-ctcx": coampsCTCX,
	"nhc":         nhc,
}

// LookupService resolves a request service name to its descriptor.
func LookupService(name string) (*Service, error) {
	if s, ok := serviceRegistry[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("invalid service: %s", name)
}

// ServiceNames returns the names of all registered services.
func ServiceNames() []string {
	names := make([]string, 0, len(serviceRegistry))
	for n := range serviceRegistry {
		names = append(names, n)
	}
	return names
}
