// Package mqtt provides MQTT client connectivity for the adapter.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//
// # Topics
//
// Every adapter owns the subtree wtap/{device_id}:
//
//	wtap/{device_id}/command       command envelopes in
//	wtap/{device_id}/response      command replies out
//	wtap/{device_id}/event/{name}  WiFi notifications out
//	wtap/{device_id}/status        retained online/offline, also the LWT
//
// The relay that feeds command envelopes through the request pipeline
// lives in the api package; this package only carries bytes.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Device.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().Command(), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(payload)
//	    })
package mqtt
