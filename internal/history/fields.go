package history

import "fmt"

// Field tables map payload keys (after prefix stripping) to sink columns.
// They mirror migrations/20260301_000002_history_tables.up.sql.

// gatewayFields are the gateway system registers, stored as text.
var gatewayFields = []field{
	{"RunTime", "run_time", asText},
	{"RunSecond", "run_second", asText},
	{"StartDateTime", "start_date_time", asText},
	{"BuzzerSw", "buzzer_sw", asText},
	{"RestartDevice", "restart_device", asText},
	{"CloudOnline", "cloud_online", asText},
	{"SDFreeSpace", "sd_free_space", asText},
	{"UFreeSpace", "u_free_space", asText},
	{"SysFreeSpace", "sys_free_space", asText},
	{"LocalTotalSpace", "local_total_space", asText},
	{"LocalFreeSpace", "local_free_space", asText},
}

// meterFields are the three-phase meter registers. The CT/PT ratios pass through.
var meterFields = []field{
	{"irAt", "ir_at", asText},
	{"urAt", "ur_at", asText},
	{"uab", "uab", asFloat},
	{"ubc", "ubc", asFloat},
	{"uca", "uca", asFloat},
	{"ua", "ua", asFloat},
	{"ub", "ub", asFloat},
	{"uc", "uc", asFloat},
	{"ia", "ia", asFloat},
	{"ib", "ib", asFloat},
	{"ic", "ic", asFloat},
	{"pt", "pt", asFloat},
	{"pa", "pa", asFloat},
	{"pb", "pb", asFloat},
	{"pc", "pc", asFloat},
	{"qt", "qt", asFloat},
	{"qa", "qa", asFloat},
	{"qb", "qb", asFloat},
	{"qc", "qc", asFloat},
	{"pft", "pft", asFloat},
	{"pfa", "pfa", asFloat},
	{"pfb", "pfb", asFloat},
	{"pfc", "pfc", asFloat},
	{"freq", "freq", asFloat},
	{"dmPt", "dm_pt", asFloat},
	{"impEp", "imp_ep", asFloat},
	{"expEp", "exp_ep", asFloat},
	{"q1Eq", "q1_eq", asFloat},
	{"q2Eq", "q2_eq", asFloat},
	{"q3Eq", "q3_eq", asFloat},
	{"q4Eq", "q4_eq", asFloat},
}

// batteryFields are the inverter battery registers.
var batteryFields = []field{
	{"battStatus", "batt_status", asInt},
	{"battVolt", "batt_volt", asInt},
	{"battCurr", "batt_curr", asInt},
	{"battPower", "batt_power", asInt},
	{"battMaxTemp", "batt_max_temp", asInt},
	{"battMinTemp", "batt_min_temp", asInt},
	{"cellsMaxVolt", "cells_max_volt", asInt},
	{"cellsMinVolt", "cells_min_volt", asInt},
	{"battCapacity", "batt_capacity", asInt},
	{"battDailyChargeCap", "batt_daily_charge_cap", asInt},
	{"battDailyDischargeCap", "batt_daily_discharge_cap", asInt},
}

// inverterCoreFields are the inverter grid-side registers.
var inverterCoreFields = []field{
	{"devStatus", "dev_status", asInt},
	{"dailyEnergy", "daily_energy", asInt},
	{"totalEnergy1", "total_energy1", asInt},
	{"totalEnergy2", "total_energy2", asInt},
	{"gridFreq", "grid_freq", asInt},
	{"uPhaseUvGridVolt", "u_phase_uv_grid_volt", asInt},
	{"vPhaseVwGridVolt", "v_phase_vw_grid_volt", asInt},
	{"wPhaseWuGridVolt", "w_phase_wu_grid_volt", asInt},
	{"uPhaseGridCurr", "u_phase_grid_curr", asInt},
	{"vPhaseGridCurr", "v_phase_grid_curr", asInt},
	{"wPhaseGridCurr", "w_phase_grid_curr", asInt},
	{"gridConnTotalActivePower", "grid_conn_total_active_power", asInt},
	{"gridConnTotalReactivePower", "grid_conn_total_reactive_power", asInt},
	{"heatsinkTemp", "heatsink_temp", asInt},
	{"innerTemp", "inner_temp", asInt},
	{"gridConnTotalApparentPower", "grid_conn_total_apparent_power", asInt},
	{"igbtTemp", "igbt_temp", asInt},
	{"outputPowerFactor", "output_power_factor", asInt},
	{"pvInputTotalPower", "pv_input_total_power", asInt},
	{"acLeakageCurr", "ac_leakage_curr", asInt},
	{"dailyPowerConsump", "daily_power_consump", asInt},
	{"totalPowerConsump1", "total_power_consump1", asInt},
	{"totalPowerConsump2", "total_power_consump2", asInt},
	{"onGridActivePower", "on_grid_active_power", asInt},
	{"onGridApparentPower", "on_grid_apparent_power", asInt},
	{"onGridReactivePower", "on_grid_reactive_power", asInt},
	{"onGridPowerFactor", "on_grid_power_factor", asInt},
}

// loadFields are the inverter load-side registers.
var loadFields = []field{
	{"uPhaseLoadVolt", "u_phase_load_volt", asInt},
	{"vPhaseLoadVolt", "v_phase_load_volt", asInt},
	{"wPhaseLoadVolt", "w_phase_load_volt", asInt},
	{"uPhaseLoadCurr", "u_phase_load_curr", asInt},
	{"vPhaseLoadCurr", "v_phase_load_curr", asInt},
	{"wPhaseLoadCurr", "w_phase_load_curr", asInt},
	{"loadTotalActivePower", "load_total_active_power", asInt},
	{"loadTotalReactivePower", "load_total_reactive_power", asInt},
	{"loadTotalApparentPower", "load_total_apparent_power", asInt},
	{"uPhaseLoadActivePower", "u_phase_load_active_power", asInt},
	{"vPhaseLoadActivePower", "v_phase_load_active_power", asInt},
	{"wPhaseLoadActivePower", "w_phase_load_active_power", asInt},
	{"uPhaseLoadReactivePower", "u_phase_load_reactive_power", asInt},
	{"vPhaseLoadReactivePower", "v_phase_load_reactive_power", asInt},
	{"wPhaseLoadReactivePower", "w_phase_load_reactive_power", asInt},
	{"uPhaseLoadApparentPower", "u_phase_load_apparent_power", asInt},
	{"vPhaseLoadApparentPower", "v_phase_load_apparent_power", asInt},
	{"wPhaseLoadApparentPower", "w_phase_load_apparent_power", asInt},
	{"uPhaseLoadPowerFactor", "u_phase_load_power_factor", asInt},
	{"vPhaseLoadPowerFactor", "v_phase_load_power_factor", asInt},
	{"wPhaseLoadPowerFactor", "w_phase_load_power_factor", asInt},
	{"loadPowerFactor", "load_power_factor", asInt},
	{"dailyLoadPowerConsump", "daily_load_power_consump", asInt},
	{"totalLoadPowerConsump1", "total_load_power_consump1", asInt},
	{"totalLoadPowerConsump2", "total_load_power_consump2", asInt},
}

// mpptFields cover up to eight MPPT trackers.
var mpptFields = []field{
	{"dailyPvEnergy", "daily_pv_energy", asInt},
	{"totalPvEnergy1", "total_pv_energy1", asInt},
	{"totalPvEnergy2", "total_pv_energy2", asInt},
	{"totalInsulationImp", "total_insulation_imp", asInt},
	{"voltOfMppt1", "volt_of_mppt1", asInt},
	{"voltOfMppt2", "volt_of_mppt2", asInt},
	{"voltOfMppt3", "volt_of_mppt3", asInt},
	{"voltOfMppt4", "volt_of_mppt4", asInt},
	{"voltOfMppt5", "volt_of_mppt5", asInt},
	{"voltOfMppt6", "volt_of_mppt6", asInt},
	{"voltOfMppt7", "volt_of_mppt7", asInt},
	{"voltOfMppt8", "volt_of_mppt8", asInt},
	{"currOfMppt1", "curr_of_mppt1", asInt},
	{"currOfMppt2", "curr_of_mppt2", asInt},
	{"currOfMppt3", "curr_of_mppt3", asInt},
	{"currOfMppt4", "curr_of_mppt4", asInt},
	{"currOfMppt5", "curr_of_mppt5", asInt},
	{"currOfMppt6", "curr_of_mppt6", asInt},
	{"currOfMppt7", "curr_of_mppt7", asInt},
	{"currOfMppt8", "curr_of_mppt8", asInt},
}

// pvStrings is the number of PV string inputs an inverter reports.
const pvStrings = 32

// pvFields returns voltage, current and power for every PV string.
func pvFields() []field {
	fields := make([]field, 0, pvStrings*3)
	for i := 1; i <= pvStrings; i++ {
		fields = append(fields,
			field{fmt.Sprintf("voltageOfPv%d", i), fmt.Sprintf("voltage_of_pv%d", i), asInt},
			field{fmt.Sprintf("currentOfPv%d", i), fmt.Sprintf("current_of_pv%d", i), asInt},
			field{fmt.Sprintf("powerOfPv%d", i), fmt.Sprintf("power_of_pv%d", i), asInt},
		)
	}
	return fields
}
