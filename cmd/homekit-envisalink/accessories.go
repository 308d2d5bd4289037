package main

import (
	"context"
	"net/http"
	"strconv"

	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/service"
	envisalink "github.com/caarlos0/homekit-envisalink"
	"github.com/caarlos0/homekit-envisalink/entities"
)

type Executor = func(func(ctx context.Context) error) error

// ZoneSensor is a zone as a HomeKit sensor. The sensor service depends on the
// zone type.
type ZoneSensor struct {
	*accessory.A
	sensor *entities.BinarySensor
	bypass *entities.Switch

	Contact *service.ContactSensor
	Motion  *service.MotionSensor
	Smoke   *service.SmokeSensor
	Leak    *service.LeakSensor
	Bypass  *service.Switch
	Tamper  *characteristic.StatusTampered
	Fault   *characteristic.StatusFault
}

func newZoneSensor(sensor *entities.BinarySensor, bypass *entities.Switch, execute Executor) *ZoneSensor {
	device := sensor.Device()
	a := &ZoneSensor{
		sensor: sensor,
		bypass: bypass,
	}
	a.A = accessory.New(accessory.Info{
		Name:         device.Name,
		SerialNumber: sensor.UniqueID(),
		Manufacturer: device.Manufacturer,
		Model:        device.Model,
		Firmware:     device.SWVersion,
	}, accessory.TypeSensor)
	a.Id = zoneAccessoryID(sensor.Zone())

	a.Tamper = characteristic.NewStatusTampered()
	a.Fault = characteristic.NewStatusFault()

	var s *service.S
	switch sensor.DeviceClass() {
	case "motion", "occupancy", "presence":
		a.Motion = service.NewMotionSensor()
		s = a.Motion.S
	case "smoke", "gas", "carbon_monoxide", "heat":
		a.Smoke = service.NewSmokeSensor()
		s = a.Smoke.S
	case "moisture":
		a.Leak = service.NewLeakSensor()
		s = a.Leak.S
	default:
		a.Contact = service.NewContactSensor()
		s = a.Contact.S
	}
	s.AddC(a.Tamper.C)
	s.AddC(a.Fault.C)
	a.AddS(s)

	if bypass != nil {
		a.Bypass = service.NewSwitch()
		a.Bypass.On.SetValueRequestFunc = func(value interface{}, _ *http.Request) (interface{}, int) {
			v := value.(bool)
			if v == bypass.IsOn() {
				return nil, hap.JsonStatusSuccess
			}
			log.Info("set zone bypass", "zone", bypass.Zone(), "bypass", v)
			if err := execute(func(ctx context.Context) error {
				if v {
					return bypass.TurnOn(ctx)
				}
				return bypass.TurnOff(ctx)
			}); err != nil {
				log.Error("failed to set bypass", "zone", bypass.Zone(), "value", v, "err", err)
				return nil, hap.JsonStatusResourceBusy
			}
			return nil, hap.JsonStatusSuccess
		}
		a.AddS(a.Bypass.S)
	}

	a.Update()
	a.UpdateBypass()
	return a
}

// Update copies the zone state into the HomeKit characteristics.
func (a *ZoneSensor) Update() {
	zone := a.sensor.Zone()
	label := strconv.Itoa(zone)
	status := a.sensor.Status()
	open := a.sensor.IsOn()

	openGauge.WithLabelValues(label).Set(boolAs[float64](open))
	tamperGauge.WithLabelValues(label).Set(boolAs[float64](status.Tamper))
	faultGauge.WithLabelValues(label).Set(boolAs[float64](status.Fault))

	switch {
	case a.Motion != nil:
		if a.Motion.MotionDetected.Value() != open {
			a.Motion.MotionDetected.SetValue(open)
			log.Info("motion", "zone", zone, "status", open)
		}
	case a.Smoke != nil:
		if v := boolAs[int](open); a.Smoke.SmokeDetected.Value() != v {
			_ = a.Smoke.SmokeDetected.SetValue(v)
			log.Info("smoke", "zone", zone, "status", open)
		}
	case a.Leak != nil:
		if v := boolAs[int](open); a.Leak.LeakDetected.Value() != v {
			_ = a.Leak.LeakDetected.SetValue(v)
			log.Info("leak", "zone", zone, "status", open)
		}
	default:
		if v := boolAs[int](open); a.Contact.ContactSensorState.Value() != v {
			_ = a.Contact.ContactSensorState.SetValue(v)
			log.Info("contact", "zone", zone, "status", open)
		}
	}

	if v := boolAs[int](status.Tamper); a.Tamper.Value() != v {
		_ = a.Tamper.SetValue(v)
		log.Info("tamper", "zone", zone, "status", status.Tamper)
	}
	if v := boolAs[int](status.Fault); a.Fault.Value() != v {
		_ = a.Fault.SetValue(v)
		log.Info("fault", "zone", zone, "status", status.Fault)
	}
}

// UpdateBypass copies the zone bypass flag into the bypass switch.
func (a *ZoneSensor) UpdateBypass() {
	if a.bypass == nil {
		return
	}
	bypassed := a.bypass.IsOn()
	bypassedGauge.WithLabelValues(strconv.Itoa(a.bypass.Zone())).Set(boolAs[float64](bypassed))
	if a.Bypass.On.Value() != bypassed {
		a.Bypass.On.SetValue(bypassed)
		log.Info("bypass", "zone", a.bypass.Zone(), "status", bypassed)
	}
}

// SecuritySystem shows the state of a partition. Arming from HomeKit is not
// supported, so target state writes are rejected.
type SecuritySystem struct {
	*accessory.A
	sensor *entities.Sensor

	SecuritySystem *service.SecuritySystem
	Fault          *characteristic.StatusFault
}

func newSecuritySystem(sensor *entities.Sensor) *SecuritySystem {
	device := sensor.Device()
	a := &SecuritySystem{sensor: sensor}
	a.A = accessory.New(accessory.Info{
		Name:         device.Name,
		SerialNumber: sensor.UniqueID(),
		Manufacturer: device.Manufacturer,
		Model:        device.Model,
		Firmware:     device.SWVersion,
	}, accessory.TypeSecuritySystem)
	a.Id = partitionAccessoryID(sensor.Partition())

	a.SecuritySystem = service.NewSecuritySystem()
	a.AddS(a.SecuritySystem.S)

	a.Fault = characteristic.NewStatusFault()
	a.SecuritySystem.AddC(a.Fault.C)

	a.SecuritySystem.SecuritySystemTargetState.SetValueRequestFunc = func(interface{}, *http.Request) (interface{}, int) {
		log.Warn("arming from homekit is not supported", "partition", sensor.Partition())
		return nil, hap.JsonStatusReadOnlyCharacteristic
	}

	a.Update()
	return a
}

// Update copies the partition status into the HomeKit characteristics.
func (a *SecuritySystem) Update() {
	status := a.sensor.Status()
	state := partitionState(status)
	partitionStateGauge.WithLabelValues(strconv.Itoa(a.sensor.Partition())).Set(float64(state))

	if a.SecuritySystem.SecuritySystemCurrentState.Value() != state {
		err := a.SecuritySystem.SecuritySystemCurrentState.SetValue(state)
		log.Info("set current state", "partition", a.sensor.Partition(), "state", state, "alpha", status.Alpha, "err", err)
	}
	if target, ok := targetState(state); ok && a.SecuritySystem.SecuritySystemTargetState.Value() != target {
		_ = a.SecuritySystem.SecuritySystemTargetState.SetValue(target)
	}
	if v := boolAs[int](status.Trouble || status.BatteryTrouble || !status.ACPresent); a.Fault.Value() != v {
		_ = a.Fault.SetValue(v)
		log.Info("partition trouble", "partition", a.sensor.Partition(), "trouble", status.Trouble, "battery", status.BatteryTrouble, "ac", status.ACPresent)
	}
}

func partitionState(status envisalink.PartitionStatus) int {
	switch {
	case status.Alarm:
		return characteristic.SecuritySystemCurrentStateAlarmTriggered
	case status.ArmedAway:
		return characteristic.SecuritySystemCurrentStateAwayArm
	case status.ArmedStay && status.ArmedZeroEntryDelay:
		return characteristic.SecuritySystemCurrentStateNightArm
	case status.ArmedStay:
		return characteristic.SecuritySystemCurrentStateStayArm
	default:
		return characteristic.SecuritySystemCurrentStateDisarmed
	}
}

// targetState maps a current state to the matching target state. A triggered
// alarm keeps whatever target was set.
func targetState(current int) (int, bool) {
	switch current {
	case characteristic.SecuritySystemCurrentStateStayArm:
		return characteristic.SecuritySystemTargetStateStayArm, true
	case characteristic.SecuritySystemCurrentStateAwayArm:
		return characteristic.SecuritySystemTargetStateAwayArm, true
	case characteristic.SecuritySystemCurrentStateNightArm:
		return characteristic.SecuritySystemTargetStateNightArm, true
	case characteristic.SecuritySystemCurrentStateDisarmed:
		return characteristic.SecuritySystemTargetStateDisarm, true
	default:
		return 0, false
	}
}

func partitionAccessoryID(n int) uint64 {
	return uint64(10 + n)
}

func zoneAccessoryID(n int) uint64 {
	return uint64(100 + n)
}

func boolAs[T int | float64](b bool) T {
	if b {
		return 1
	}
	return 0
}
