package gateway

import (
	"context"
	"fmt"

	"github.com/openclaw/tradegate/internal/domain"
	"github.com/openclaw/tradegate/internal/protocol"
)

func (g *Gateway) handleDevicesPair(_ context.Context, _ *Session, req protocol.Request) handlerResult {
	var params devicesPairParams
	if err := decodeParams(req.ParamsOrEmpty(), &params); err != nil {
		return fail(domain.CodeInvalidParams, "invalid devices.pair params", nil)
	}
	if err := params.validate(); err != nil {
		return fail(domain.CodeInvalidParams, err.Error(), nil)
	}

	device := g.deps.Devices.Pair(params.DeviceID, params.Platform, params.Label, params.PushToken)

	result := ok(map[string]any{"device": device.PublicPayload()})
	result.auditData = map[string]any{
		"deviceId": params.DeviceID,
		"platform": params.Platform,
	}
	return result
}

func (g *Gateway) handleDevicesList(_ context.Context, _ *Session, _ protocol.Request) handlerResult {
	devices := g.deps.Devices.List()
	payloads := make([]map[string]any, 0, len(devices))
	for _, device := range devices {
		payloads = append(payloads, device.PublicPayload())
	}
	return ok(map[string]any{"devices": payloads})
}

func (g *Gateway) handleDevicesUnpair(_ context.Context, _ *Session, req protocol.Request) handlerResult {
	var params deviceIDParams
	if err := decodeParams(req.ParamsOrEmpty(), &params); err != nil {
		return fail(domain.CodeInvalidParams, "invalid devices.unpair params", nil)
	}
	if err := params.validate(); err != nil {
		return fail(domain.CodeInvalidParams, err.Error(), nil)
	}

	removed := g.deps.Devices.Unpair(params.DeviceID)
	if !removed {
		result := fail(domain.CodeNotFound, "unknown device", map[string]any{"deviceId": params.DeviceID})
		result.auditAction = "devices.unpair.blocked"
		result.auditData = map[string]any{"deviceId": params.DeviceID}
		return result
	}

	result := ok(map[string]any{"removed": true, "deviceId": params.DeviceID})
	result.auditData = map[string]any{"deviceId": params.DeviceID}
	return result
}

func (g *Gateway) handleDevicesRegisterPush(_ context.Context, _ *Session, req protocol.Request) handlerResult {
	var params registerPushParams
	if err := decodeParams(req.ParamsOrEmpty(), &params); err != nil {
		return fail(domain.CodeInvalidParams, "invalid devices.registerPush params", nil)
	}
	if err := params.validate(); err != nil {
		return fail(domain.CodeInvalidParams, err.Error(), nil)
	}

	device, found := g.deps.Devices.RegisterPush(params.DeviceID, params.PushToken)
	if !found {
		result := fail(domain.CodeNotFound, "unknown device", map[string]any{"deviceId": params.DeviceID})
		result.auditAction = "devices.registerPush.blocked"
		result.auditData = map[string]any{"deviceId": params.DeviceID}
		return result
	}

	result := ok(map[string]any{"device": device.PublicPayload()})
	result.auditData = map[string]any{"deviceId": params.DeviceID}
	return result
}

func (g *Gateway) handleDevicesNotifyTest(ctx context.Context, _ *Session, req protocol.Request) handlerResult {
	var params notifyTestParams
	if err := decodeParams(req.ParamsOrEmpty(), &params); err != nil {
		return fail(domain.CodeInvalidParams, "invalid devices.notifyTest params", nil)
	}
	if err := params.validate(); err != nil {
		return fail(domain.CodeInvalidParams, err.Error(), nil)
	}

	device, found := g.deps.Devices.Touch(params.DeviceID)
	if !found {
		result := ok(map[string]any{
			"status":   "missing_device",
			"deviceId": params.DeviceID,
		})
		result.auditData = map[string]any{"deviceId": params.DeviceID, "status": "missing_device"}
		return result
	}

	if g.deps.Notifier != nil {
		title := fmt.Sprintf("Test notification for %s", device.Label)
		if err := g.deps.Notifier.Notify(ctx, "device.test", title, params.Message); err != nil {
			g.logger.Warn("gateway: notify test dispatch failed")
		}
	}

	result := ok(map[string]any{
		"status":   "queued",
		"deviceId": params.DeviceID,
		"message":  params.Message,
	})
	result.auditData = map[string]any{"deviceId": params.DeviceID, "status": "queued"}
	return result
}
