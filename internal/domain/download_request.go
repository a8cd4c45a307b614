package domain

// Optional distinguishes an absent value from a present zero value.
type Optional[T any] struct {
	value T
	ok    bool
}

// Some returns a present Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, ok: true}
}

// None returns an absent Optional.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.ok
}

// IsSet reports whether a value is present.
func (o Optional[T]) IsSet() bool {
	return o.ok
}

// Default request values.
const (
	DefaultDataFormat     = "netcdf"
	DefaultDownloadFormat = "zip"
)

// DefaultTimes returns all 24 hourly slots, "00:00" through "23:00".
func DefaultTimes() []string {
	return []string{
		"00:00", "01:00", "02:00", "03:00", "04:00", "05:00",
		"06:00", "07:00", "08:00", "09:00", "10:00", "11:00",
		"12:00", "13:00", "14:00", "15:00", "16:00", "17:00",
		"18:00", "19:00", "20:00", "21:00", "22:00", "23:00",
	}
}

// DefaultArea returns the global bounding box in north, west, south, east
// order.
func DefaultArea() [4]float64 {
	return [4]float64{90, -180, -90, 180}
}

// DownloadRequest is a retrieval job submission. ID names the target
// collection and is sent separately from the other fields.
type DownloadRequest struct {
	ID             string
	ProductType    []string
	Variable       []string
	Year           []string
	Month          []string
	Day            []string
	Time           []string
	Area           [4]float64
	DataFormat     string
	DownloadFormat string
	PressureLevel  Optional[[]string]
}

// NewDownloadRequest returns a request for collection id with every
// defaulted field filled in. The required selection fields are left empty.
func NewDownloadRequest(id string) *DownloadRequest {
	return &DownloadRequest{
		ID:             id,
		Time:           DefaultTimes(),
		Area:           DefaultArea(),
		DataFormat:     DefaultDataFormat,
		DownloadFormat: DefaultDownloadFormat,
		PressureLevel:  None[[]string](),
	}
}

// SubmissionInputs builds the upstream parameter mapping. The id is
// excluded and pressure_level is only included when present.
func (r *DownloadRequest) SubmissionInputs() map[string]interface{} {
	inputs := map[string]interface{}{
		"product_type":    r.ProductType,
		"variable":        r.Variable,
		"year":            r.Year,
		"month":           r.Month,
		"day":             r.Day,
		"time":            r.Time,
		"area":            r.Area[:],
		"data_format":     r.DataFormat,
		"download_format": r.DownloadFormat,
	}
	if levels, ok := r.PressureLevel.Get(); ok {
		inputs["pressure_level"] = levels
	}
	return inputs
}
