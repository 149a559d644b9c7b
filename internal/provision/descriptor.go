package provision

// DeviceDescriptor is the board report a device posts when it asks for its
// endpoint. Everything except the MAC fields is fixed test data.
type DeviceDescriptor struct {
	Version             int            `json:"version"`
	UUID                string         `json:"uuid"`
	Application         Application    `json:"application"`
	OTA                 OTA            `json:"ota"`
	Board               Board          `json:"board"`
	FlashSize           int            `json:"flash_size"`
	MinimumFreeHeapSize int            `json:"minimum_free_heap_size"`
	MACAddress          string         `json:"mac_address"`
	ChipModelName       string         `json:"chip_model_name"`
	ChipInfo            ChipInfo       `json:"chip_info"`
	PartitionTable      []PartitionRow `json:"partition_table"`
}

type Application struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	CompileTime string `json:"compile_time"`
	IDFVersion  string `json:"idf_version"`
	ELFSHA256   string `json:"elf_sha256"`
}

type OTA struct {
	Label string `json:"label"`
}

type Board struct {
	Type    string `json:"type"`
	SSID    string `json:"ssid"`
	RSSI    int    `json:"rssi"`
	Channel int    `json:"channel"`
	IP      string `json:"ip"`
	MAC     string `json:"mac"`
}

type ChipInfo struct {
	Model    int `json:"model"`
	Cores    int `json:"cores"`
	Revision int `json:"revision"`
	Features int `json:"features"`
}

type PartitionRow struct {
	Label   string `json:"label"`
	Type    int    `json:"type"`
	Subtype int    `json:"subtype"`
	Address int    `json:"address"`
	Size    int    `json:"size"`
}

const fixtureName = "xiaozhi-web-test"

// testDevice is the fixed part of every descriptor.
var testDevice = DeviceDescriptor{
	Version: 0,
	Application: Application{
		Name:        fixtureName,
		Version:     "1.0.0",
		CompileTime: "2025-04-16 10:00:00",
		IDFVersion:  "4.4.3",
		ELFSHA256:   "1234567890abcdef1234567890abcdef1234567890abcdef",
	},
	OTA: OTA{Label: fixtureName},
	Board: Board{
		Type: fixtureName,
		SSID: fixtureName,
		IP:   "192.168.1.1",
	},
	PartitionTable: []PartitionRow{{}},
}

// NewDeviceDescriptor returns the fixture stamped with mac.
func NewDeviceDescriptor(mac string) DeviceDescriptor {
	d := testDevice
	d.PartitionTable = append([]PartitionRow(nil), testDevice.PartitionTable...)
	d.Board.MAC = mac
	d.MACAddress = mac
	return d
}
