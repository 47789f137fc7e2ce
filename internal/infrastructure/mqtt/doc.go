// Package mqtt provides MQTT client connectivity for the irrigation controller.
//
// This package manages:
//   - Connection to the broker, with bounded retries at startup and
//     automatic reconnect afterwards
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//
// # Sessions and subscriptions
//
// The client uses clean sessions and does not restore subscriptions itself.
// Every established session (and every broker refusal) is reported through
// the callback registered with SetOnConnect; the owner subscribes from there.
// This keeps "one subscription per connection" a property of the caller
// rather than something two layers race to provide.
//
// # Usage
//
//	client := mqtt.NewClient(cfg.MQTT)
//	client.SetOnConnect(func(ev mqtt.ConnectEvent) {
//	    if ev.Accepted() {
//	        client.Subscribe(cfg.MQTT.Topic, 1, handle)
//	    }
//	})
//	if err := client.ConnectWithRetry(ctx, cfg.MQTT.Reconnect.StartupAttempts); err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.Publish("garden/watering", []byte("4350"), 1, false)
package mqtt
