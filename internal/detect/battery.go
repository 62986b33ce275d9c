package detect

import "time"

// checkBattery reads the pack voltage and applies the power policy:
// a low warning at LowVoltage, LOW_BATTERY below CriticalVoltage, and
// recovery only after the voltage has held above the critical mark
// plus RecoveryMargin for RecoveryHold. Caller holds e.mu.
func (e *Engine) checkBattery(now time.Time) {
	voltage, err := e.board.ReadBatteryVoltage()
	if err != nil {
		e.logger.Warn("battery read failed", "error", err)
		return
	}
	e.batteryVoltage = voltage

	if e.mode == ModeError {
		return
	}

	pwr := e.cfg.Power

	if e.mode == ModeLowBattery {
		if voltage >= pwr.CriticalVoltage+pwr.RecoveryMargin {
			if e.recoverySince.IsZero() {
				e.recoverySince = now
			} else if now.Sub(e.recoverySince) >= pwr.RecoveryHold {
				e.recoverySince = time.Time{}
				e.transition(ModeScan, now)
			}
		} else {
			e.recoverySince = time.Time{}
		}
		return
	}

	if voltage <= pwr.CriticalVoltage {
		e.logger.Warn("battery critical", "voltage", voltage)
		e.alerter.Stop()
		e.detectionCount = 0
		e.recoverySince = time.Time{}
		if e.mode == ModeCalibrate {
			// Abort without committing a partial profile.
			e.abortCalibration()
		}
		e.transition(ModeLowBattery, now)
		e.emit(Event{
			Kind:      EventBatteryCritical,
			Mode:      e.mode.String(),
			Timestamp: now,
			Voltage:   voltage,
		})
		return
	}

	if voltage <= pwr.LowVoltage {
		if !e.lowWarned {
			e.lowWarned = true
			e.logger.Warn("battery low", "voltage", voltage)
			e.emit(Event{
				Kind:      EventBatteryLow,
				Mode:      e.mode.String(),
				Timestamp: now,
				Voltage:   voltage,
			})
		}
	} else if voltage > pwr.LowVoltage+pwr.RecoveryMargin {
		e.lowWarned = false
	}
}
