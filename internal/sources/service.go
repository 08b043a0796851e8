package sources

import "fmt"

// FileFormat is the on-disk format of a service's files.
type FileFormat int

const (
	FormatGRIB FileFormat = iota + 1
	FormatCOAMPSNetCDF
	FormatATCF
)

func (f FileFormat) String() string {
	switch f {
	case FormatGRIB:
		return "grib"
	case FormatCOAMPSNetCDF:
		return "coamps-netcdf"
	case FormatATCF:
		return "atcf"
	}
	return "unknown"
}

// Variable describes how a service encodes one meteorological field.
type Variable struct {
	Type MetDataType

	// LongName is matched against GRIB inventory (.idx) lines when
	// subsetting remote files.
	LongName string

	// VarName is the decoded variable name, GribName the short name in
	// the GRIB message itself.
	VarName  string
	GribName string

	// Scale converts decoded values into the canonical units of Type.
	Scale float64

	// IsAccumulated marks running accumulations that must be differenced
	// into rates. AccumulationTime, when nonzero, is a fixed accumulation
	// window in seconds instead.
	IsAccumulated    bool
	AccumulationTime int

	// SkipTauZero marks fields absent or zero-filled in the tau=0 snapshot.
	SkipTauZero bool
}

// Service describes one upstream meteorological model.
type Service struct {
	Name            string
	Table           string
	Format          FileFormat
	Bucket          string
	Cycles          []int
	EnsembleMembers []string
	StormScoped     bool
	Variables       map[MetDataType]Variable
}

// Variable looks up the encoding of a data type for this service.
func (s *Service) Variable(t MetDataType) (Variable, bool) {
	v, ok := s.Variables[t]
	return v, ok
}

// HasVariable reports whether this service provides the data type.
func (s *Service) HasVariable(t MetDataType) bool {
	_, ok := s.Variables[t]
	return ok
}

// ScaleFor returns the decode scale factor, 1.0 when the variable is
// not provided.
func (s *Service) ScaleFor(t MetDataType) float64 {
	if v, ok := s.Variables[t]; ok {
		return v.Scale
	}
	return 1.0
}

// IsAccumulated reports whether the data type is a running accumulation.
func (s *Service) IsAccumulated(t MetDataType) bool {
	if v, ok := s.Variables[t]; ok {
		return v.IsAccumulated
	}
	return false
}

// AccumulationTime returns the fixed accumulation window in seconds, or 0.
func (s *Service) AccumulationTime(t MetDataType) int {
	if v, ok := s.Variables[t]; ok {
		return v.AccumulationTime
	}
	return 0
}

// SkipTauZero reports whether the field is unusable at tau=0.
func (s *Service) SkipTauZero(t MetDataType) bool {
	if v, ok := s.Variables[t]; ok {
		return v.SkipTauZero
	}
	return false
}

// IsEnsemble reports whether the service publishes ensemble members.
func (s *Service) IsEnsemble() bool {
	return len(s.EnsembleMembers) > 0
}

// ValidEnsembleMember reports whether member is one the service publishes.
func (s *Service) ValidEnsembleMember(member string) bool {
	for _, m := range s.EnsembleMembers {
		if m == member {
			return true
		}
	}
	return false
}

// SelectedVariables returns the service's encodings for a request selection,
// skipping types the service does not provide.
func (s *Service) SelectedVariables(v VariableType) []Variable {
	var out []Variable
	for _, t := range v.Select() {
		if sv, ok := s.Variables[t]; ok {
			out = append(out, sv)
		}
	}
	return out
}

// RequireVariables is like SelectedVariables but errors when the selection
// names a type the service cannot provide.
func (s *Service) RequireVariables(v VariableType) ([]Variable, error) {
	if v == VarAllVariables {
		return s.SelectedVariables(v), nil
	}
	var out []Variable
	for _, t := range v.Select() {
		sv, ok := s.Variables[t]
		if !ok {
			return nil, fmt.Errorf("service %s does not provide %s", s.Name, t)
		}
		out = append(out, sv)
	}
	return out, nil
}
