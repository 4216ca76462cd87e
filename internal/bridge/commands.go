package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-nexia/internal/nexia"
)

// Command names accepted on the command topic.
const (
	CmdSetMode           = "set_mode"
	CmdSetSetpoints      = "set_setpoints"
	CmdSetPreset         = "set_preset"
	CmdPermanentHold     = "permanent_hold"
	CmdReturnToSchedule  = "return_to_schedule"
	CmdSetFanMode        = "set_fan_mode"
	CmdSetFanSpeed       = "set_fan_speed"
	CmdSetAirCleaner     = "set_air_cleaner"
	CmdSetFollowSchedule = "set_follow_schedule"
	CmdSetEmergencyHeat  = "set_emergency_heat"
	CmdSetHumidity       = "set_humidity"
	CmdRefresh           = "refresh"
)

// Command validation errors, mapped to ack error codes.
var (
	errUnknownCommand   = errors.New("unknown command")
	errInvalidParameter = errors.New("invalid parameter")
)

// handleCommand processes one message from graylogic/command/nexia/+.
//
// Every command gets exactly one ack: accepted after the cloud confirmed
// it, failed otherwise. Accepted commands publish the confirmed device
// state immediately from the merged cache.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	b.commandsTotal.Add(1)
	address := topic[strings.LastIndex(topic, "/")+1:]

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.commandErrors.Add(1)
		b.publishAck(NewAckError(CommandMessage{}, address, ErrCodeInvalidCommand, "malformed command payload"))
		return fmt.Errorf("bridge: decoding command on %s: %w", topic, err)
	}

	kind, id, err := ParseAddress(address)
	if err != nil {
		b.commandErrors.Add(1)
		b.publishAck(NewAckError(cmd, address, ErrCodeUnknownDevice, err.Error()))
		return nil
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	var execErr error
	switch kind {
	case AddressKindZone:
		execErr = b.executeZoneCommand(ctx, id, cmd)
	case AddressKindThermostat:
		execErr = b.executeThermostatCommand(ctx, id, cmd)
	}
	if execErr != nil {
		b.commandErrors.Add(1)
		code := errorCode(execErr)
		b.logger.Warn("command failed",
			"command", cmd.Command, "address", address, "code", code, "error", execErr)
		b.publishAck(NewAckError(cmd, address, code, execErr.Error()))
		return nil
	}

	b.logger.Debug("command executed",
		"command", cmd.Command, "address", address, "source", cmd.Source)
	b.publishAck(NewAckMessage(cmd, address, AckAccepted))
	b.publishConfirmedState(ctx, kind, id)
	return nil
}

func (b *Bridge) executeZoneCommand(ctx context.Context, id int64, cmd CommandMessage) error {
	zone, err := b.client.Zone(ctx, id)
	if err != nil {
		return err
	}

	switch cmd.Command {
	case CmdSetMode:
		mode, err := requireString(cmd.Parameters, "mode")
		if err != nil {
			return err
		}
		return zone.SetMode(ctx, mode)

	case CmdSetSetpoints:
		heat, err := optionalFloat(cmd.Parameters, "heat")
		if err != nil {
			return err
		}
		cool, err := optionalFloat(cmd.Parameters, "cool")
		if err != nil {
			return err
		}
		target, err := optionalFloat(cmd.Parameters, "target")
		if err != nil {
			return err
		}
		return zone.SetSetpoints(ctx, heat, cool, target)

	case CmdSetPreset:
		preset, err := requireString(cmd.Parameters, "preset")
		if err != nil {
			return err
		}
		return zone.SetPreset(ctx, preset)

	case CmdPermanentHold:
		heat, err := optionalFloat(cmd.Parameters, "heat")
		if err != nil {
			return err
		}
		cool, err := optionalFloat(cmd.Parameters, "cool")
		if err != nil {
			return err
		}
		return zone.PermanentHold(ctx, heat, cool)

	case CmdReturnToSchedule:
		return zone.ReturnToSchedule(ctx)

	default:
		return fmt.Errorf("%w: %q for zone", errUnknownCommand, cmd.Command)
	}
}

func (b *Bridge) executeThermostatCommand(ctx context.Context, id int64, cmd CommandMessage) error {
	thermostat, err := b.client.Thermostat(ctx, id)
	if err != nil {
		return err
	}

	switch cmd.Command {
	case CmdSetFanMode:
		mode, err := requireString(cmd.Parameters, "mode")
		if err != nil {
			return err
		}
		return thermostat.SetFanMode(ctx, mode)

	case CmdSetFanSpeed:
		speed, err := requireFloat(cmd.Parameters, "speed")
		if err != nil {
			return err
		}
		return thermostat.SetFanSpeedSetpoint(ctx, speed)

	case CmdSetAirCleaner:
		mode, err := requireString(cmd.Parameters, "mode")
		if err != nil {
			return err
		}
		return thermostat.SetAirCleanerMode(ctx, mode)

	case CmdSetFollowSchedule:
		follow, err := requireBool(cmd.Parameters, "follow")
		if err != nil {
			return err
		}
		return thermostat.SetFollowSchedule(ctx, follow)

	case CmdSetEmergencyHeat:
		on, err := requireBool(cmd.Parameters, "on")
		if err != nil {
			return err
		}
		return thermostat.SetEmergencyHeat(ctx, on)

	case CmdSetHumidity:
		humidify, err := optionalFloat(cmd.Parameters, "humidify")
		if err != nil {
			return err
		}
		dehumidify, err := optionalFloat(cmd.Parameters, "dehumidify")
		if err != nil {
			return err
		}
		if humidify == nil && dehumidify == nil {
			return fmt.Errorf("%w: humidify or dehumidify is required", errInvalidParameter)
		}
		return thermostat.SetHumiditySetpoints(ctx, humidify, dehumidify)

	case CmdRefresh:
		return b.client.Refresh(ctx)

	default:
		return fmt.Errorf("%w: %q for thermostat", errUnknownCommand, cmd.Command)
	}
}

// publishConfirmedState republishes the device state after an accepted
// command. The cloud's confirmation fragment has already been merged into
// the cache, so no network traffic happens here unless the snapshot went
// stale.
func (b *Bridge) publishConfirmedState(ctx context.Context, kind string, id int64) {
	switch kind {
	case AddressKindZone:
		zone, err := b.client.Zone(ctx, id)
		if err != nil {
			return
		}
		b.publishIfChanged(ZoneAddress(id), zoneState(zone))
	case AddressKindThermostat:
		thermostat, err := b.client.Thermostat(ctx, id)
		if err != nil {
			return
		}
		b.publishIfChanged(ThermostatAddress(id), thermostatState(thermostat))
	}
}

func (b *Bridge) publishAck(ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logger.Error("marshalling ack message", "error", err)
		return
	}
	topic := b.topics.BridgeAck(ProtocolNexia, ack.Address)
	if err := b.mqtt.Publish(topic, payload, 1, false); err != nil {
		b.logger.Warn("publishing ack", "topic", topic, "error", err)
	}
}

// errorCode maps a command error to its ack error code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, errUnknownCommand):
		return ErrCodeInvalidCommand
	case errors.Is(err, errInvalidParameter),
		errors.Is(err, nexia.ErrInvalidValue),
		errors.Is(err, nexia.ErrPresetNotFound):
		return ErrCodeInvalidParameters
	case errors.Is(err, nexia.ErrUnsupported):
		return ErrCodeUnsupported
	case errors.Is(err, nexia.ErrZoneNotFound),
		errors.Is(err, nexia.ErrThermostatNotFound),
		errors.Is(err, nexia.ErrAmbiguousThermostat):
		return ErrCodeUnknownDevice
	default:
		return ErrCodeCloudError
	}
}

// =============================================================================
// Parameter Extraction
// =============================================================================

func requireString(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", fmt.Errorf("%w: %q is required", errInvalidParameter, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %q must be a string", errInvalidParameter, key)
	}
	return s, nil
}

func requireFloat(params map[string]any, key string) (float64, error) {
	f, err := optionalFloat(params, key)
	if err != nil {
		return 0, err
	}
	if f == nil {
		return 0, fmt.Errorf("%w: %q is required", errInvalidParameter, key)
	}
	return *f, nil
}

func requireBool(params map[string]any, key string) (bool, error) {
	v, ok := params[key]
	if !ok {
		return false, fmt.Errorf("%w: %q is required", errInvalidParameter, key)
	}
	value, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %q must be a boolean", errInvalidParameter, key)
	}
	return value, nil
}

// optionalFloat returns nil without error when the key is absent.
func optionalFloat(params map[string]any, key string) (*float64, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return nil, nil
	}
	f, ok := v.(float64)
	if !ok {
		return nil, fmt.Errorf("%w: %q must be a number", errInvalidParameter, key)
	}
	return &f, nil
}
