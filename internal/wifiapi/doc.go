// Package wifiapi exposes the WiFi manager as JSON router module 1.
//
// Commands:
//
//	1  STA_GET_AP_INFO      station link: ip, gateway, netmask, ssid, mac, rssi
//	2  CONNECT              {ssid, password}; async; station info on success
//	3  GET_SCAN             {max?}; async; scan_list strongest first
//	4  DISCONNECT           drop the link and stop auto-reconnect
//	5  AP_GET_INFO          ssid, password, mac, ip, gateway, netmask
//	6  GET_MODE             mode, status, delays (ms) in auto mode
//	7  SET_MODE             {mode, ap_on_delay?, ap_off_delay?}
//	8  SET_AP_CRED          {ssid, password}; password of 8 or more
//	9  STA_GET_STATIC_INFO  static addressing of the station
//	10 STA_SET_STATIC_CONF  update static addressing
//
// Module failures the client can act on are returned as {"err": msg}
// with status OK; malformed input yields PropertyError.
package wifiapi
