package domain

// Registry entries as exposed by the host registries. Only the fields the
// documents need are kept.

type EntityEntry struct {
	EntityID     string   `json:"entity_id"`
	Name         string   `json:"name"`
	OriginalName string   `json:"original_name"`
	Platform     string   `json:"platform"`
	DeviceID     string   `json:"device_id"`
	AreaID       string   `json:"area_id"`
	Labels       []string `json:"labels"`
}

type DeviceEntry struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	NameByUser string   `json:"name_by_user"`
	AreaID     string   `json:"area_id"`
	Labels     []string `json:"labels"`
}

// DisplayName prefers the user-assigned device name.
func (d DeviceEntry) DisplayName() string {
	if d.NameByUser != "" {
		return d.NameByUser
	}
	return d.Name
}

type AreaEntry struct {
	ID      string `json:"area_id"`
	Name    string `json:"name"`
	FloorID string `json:"floor_id"`
}

type FloorEntry struct {
	ID   string `json:"floor_id"`
	Name string `json:"name"`
}

type LabelEntry struct {
	ID   string `json:"label_id"`
	Name string `json:"name"`
}

// EnrichedEntity is the best-effort registry view of one entity. Absent
// values are left empty and dropped when serialized.
type EnrichedEntity struct {
	Name     string
	Platform string
	Labels   []string
	Area     *AreaInfo
	Device   *DeviceInfo
}

// IsZero reports whether the lookup found nothing worth merging.
func (e EnrichedEntity) IsZero() bool {
	return e.Name == "" && e.Platform == "" && len(e.Labels) == 0 && e.Area == nil && e.Device == nil
}

type AreaInfo struct {
	ID    string     `json:"id,omitempty"`
	Name  string     `json:"name,omitempty"`
	Floor *FloorInfo `json:"floor,omitempty"`
}

type FloorInfo struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type DeviceInfo struct {
	ID     string    `json:"id,omitempty"`
	Name   string    `json:"name,omitempty"`
	Class  string    `json:"class,omitempty"`
	Labels []string  `json:"labels,omitempty"`
	Area   *AreaInfo `json:"area,omitempty"`
}

// SystemInfo describes the host installation for the static document fields.
type SystemInfo struct {
	Version   string
	Arch      string
	OSName    string
	Hostname  string
	Latitude  *float64
	Longitude *float64
}
