package wifiapi

import (
	"net/netip"

	"github.com/nerrad567/wtap-core/internal/wifi"
)

type linkInfo struct {
	IP      string `json:"ip"`
	Gateway string `json:"gateway"`
	Netmask string `json:"netmask"`
	SSID    string `json:"ssid"`
	MAC     string `json:"mac"`
	RSSI    int    `json:"rssi"`
}

type apInfo struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
	MAC      string `json:"mac"`
	IP       string `json:"ip"`
	Gateway  string `json:"gateway"`
	Netmask  string `json:"netmask"`
}

type scanEntry struct {
	SSID string `json:"ssid"`
	MAC  string `json:"mac"`
	RSSI int    `json:"rssi"`
}

type scanReply struct {
	ScanList []scanEntry `json:"scan_list"`
}

type getModeReply struct {
	Mode       int    `json:"mode"`
	Status     int    `json:"status"`
	APOnDelay  *int64 `json:"ap_on_delay,omitempty"`
	APOffDelay *int64 `json:"ap_off_delay,omitempty"`
}

type setModeReply struct {
	Mode       int `json:"mode"`
	APOnDelay  int `json:"ap_on_delay"`
	APOffDelay int `json:"ap_off_delay"`
}

type staticInfo struct {
	StaticEnabled bool   `json:"static_enabled"`
	StaticIP      string `json:"static_ip"`
	StaticNetmask string `json:"static_netmask"`
	StaticGateway string `json:"static_gateway"`
	DNSEnabled    bool   `json:"dns_enabled"`
	DNSMain       string `json:"dns_main"`
	DNSBackup     string `json:"dns_backup"`
}

// ip4 renders an unset address as 0.0.0.0.
func ip4(a netip.Addr) string {
	if !a.IsValid() {
		return "0.0.0.0"
	}
	return a.String()
}

func staInfoReply(info wifi.STAInfo) linkInfo {
	return linkInfo{
		IP:      ip4(info.IP.IP),
		Gateway: ip4(info.IP.Gateway),
		Netmask: ip4(info.IP.Netmask),
		SSID:    info.SSID,
		MAC:     info.MAC.String(),
		RSSI:    info.RSSI,
	}
}

func apInfoReply(info wifi.APInfo) apInfo {
	return apInfo{
		SSID:     info.SSID,
		Password: info.Password,
		MAC:      info.MAC.String(),
		IP:       ip4(info.IP.IP),
		Gateway:  ip4(info.IP.Gateway),
		Netmask:  ip4(info.IP.Netmask),
	}
}

func modeReply(info wifi.ModeInfo) getModeReply {
	out := getModeReply{Mode: int(info.Policy), Status: int(info.Status)}
	if info.Policy == wifi.PolicyAuto {
		on, off := info.Delays.On.Milliseconds(), info.Delays.Off.Milliseconds()
		out.APOnDelay, out.APOffDelay = &on, &off
	}
	return out
}

func staticReply(cfg wifi.StaticConfig) staticInfo {
	return staticInfo{
		StaticEnabled: cfg.Enabled,
		StaticIP:      ip4(cfg.IP),
		StaticNetmask: ip4(cfg.Netmask),
		StaticGateway: ip4(cfg.Gateway),
		DNSEnabled:    cfg.DNSEnabled,
		DNSMain:       ip4(cfg.DNSMain),
		DNSBackup:     ip4(cfg.DNSBackup),
	}
}
