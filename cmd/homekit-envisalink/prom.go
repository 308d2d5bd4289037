package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var connectedGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "homekit_envisalink",
	Subsystem: "panel",
	Name:      "connected",
	Help:      "Whether the bridge is logged in to the EnvisaLink board",
})

var partitionStateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "homekit_envisalink",
	Subsystem: "partition",
	Name:      "state",
	Help:      "HomeKit security system state of the partition",
}, []string{"partition"})

var openGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "homekit_envisalink",
	Subsystem: "zone",
	Name:      "open",
	Help:      "",
}, []string{"zone"})

var tamperGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "homekit_envisalink",
	Subsystem: "zone",
	Name:      "tamper",
	Help:      "",
}, []string{"zone"})

var faultGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "homekit_envisalink",
	Subsystem: "zone",
	Name:      "fault",
	Help:      "",
}, []string{"zone"})

var bypassedGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "homekit_envisalink",
	Subsystem: "zone",
	Name:      "bypassed",
	Help:      "",
}, []string{"zone"})

var requestCounter = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "homekit_envisalink",
	Subsystem: "client",
	Name:      "requests_total",
	Help:      "",
})

var requestErrorCounter = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "homekit_envisalink",
	Subsystem: "client",
	Name:      "request_errors_total",
	Help:      "",
})
