// Package mqtt connects AttendAI to an MQTT broker.
//
// The session daemon uses the broker for two things: it publishes every
// session lifecycle event so dashboards and other kiosks can follow along,
// and it listens on a per-client command topic so an operator can sign a
// kiosk out remotely.
//
//	attendai/session/{client}/{event}   published, QoS from config
//	attendai/command/{client}/logout    subscribed
//	attendai/system/{client}/status     retained online/offline, also the LWT
//
// Payloads never carry tokens. Use TLS (cfg.Broker.TLS) outside a lab
// network; anonymous access is for local development only.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.Command(client.ClientID(), "logout")
//	err = client.Subscribe(topic, 1, func(_ string, _ []byte) error {
//	    return manager.Logout(ctx)
//	})
package mqtt
