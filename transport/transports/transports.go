// Package transports imports every built-in broker so each registers with
// the default transport registry.
package transports

import (
	_ "github.com/drblury/contractflow/transport/aws"
	_ "github.com/drblury/contractflow/transport/channel"
	_ "github.com/drblury/contractflow/transport/http"
	_ "github.com/drblury/contractflow/transport/jetstream"
	_ "github.com/drblury/contractflow/transport/kafka"
	_ "github.com/drblury/contractflow/transport/nats"
	_ "github.com/drblury/contractflow/transport/rabbitmq"
)
