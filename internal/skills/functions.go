package skills

import "github.com/connorodea/medscribd/internal/agent"

func stringFn(name, description, field, fieldDesc string) agent.FunctionDef {
	return agent.FunctionDef{
		Name:        name,
		Description: description,
		Parameters: agent.ParameterSchema{
			Type: "object",
			Properties: map[string]agent.Property{
				field: {Type: "string", Description: fieldDesc},
			},
			Required: []string{field},
		},
	}
}

func confirmFn(name, description string) agent.FunctionDef {
	return agent.FunctionDef{
		Name:        name,
		Description: description,
		Parameters: agent.ParameterSchema{
			Type: "object",
			Properties: map[string]agent.Property{
				"confirm": {Type: "boolean", Description: "Confirmation flag (always true)"},
			},
			Required: []string{"confirm"},
		},
	}
}

func identityFns(target string) []agent.FunctionDef {
	return []agent.FunctionDef{
		stringFn("set_patient_name", "Set the patient's name for the "+target, "name", "The patient's full name"),
		stringFn("set_mrn", "Set the patient's medical record number for the "+target, "mrn", "The patient's medical record number (MRN)"),
	}
}

// Definitions returns the function surface declared to the agent for one
// skill. Only these names are reachable while the skill is active.
func Definitions(s Skill) []agent.FunctionDef {
	switch s {
	case ClinicalNote:
		return append(identityFns("clinical note"),
			stringFn("set_date_of_birth", "Set the patient's date of birth", "dateOfBirth", "Patient's date of birth in MM/DD/YYYY format"),
			stringFn("set_gender", "Set the patient's gender", "gender", "Patient's gender"),
			stringFn("set_visit_date", "Set the date of visit", "date", "Date of visit in MM/DD/YYYY format"),
			stringFn("set_visit_time", "Set the time of visit", "time", "Time of visit in HH:MM format"),
			stringFn("set_visit_type", "Set the type of visit", "visitType", "Type of visit (e.g., Initial, Follow-up, Emergency)"),
			stringFn("set_provider_name", "Set the provider's name", "provider", "Name of the healthcare provider"),
			stringFn("set_chief_complaint", "Set the chief complaint", "complaint", "Patient's main complaint or reason for visit"),
			stringFn("set_present_illness", "Set the present illness history", "illness", "History of present illness"),
			stringFn("set_review_of_systems", "Set the review of systems", "systems", "Review of systems findings"),
			stringFn("set_physical_exam", "Set the physical examination findings", "exam", "Physical examination findings"),
			stringFn("set_assessment", "Set the assessment", "assessment", "Clinical assessment or diagnosis"),
			stringFn("set_plan", "Set the treatment plan", "plan", "Treatment plan and recommendations"),
			stringFn("other_notes", "Add additional notes that don't fit other categories", "notes", "Additional notes or information"),
			confirmFn("save_note", "Save the current clinical note"),
			confirmFn("clear_note", "Clear the current clinical note"),
		)
	case DrugDispatch:
		return append(identityFns("prescription"),
			stringFn("set_medication", "Set the medication name for the prescription", "medication", "The name of the medication"),
			stringFn("set_dosage", "Set the dosage for the prescription", "dosage", "The dosage of the medication"),
			stringFn("set_frequency", "Set the frequency for the prescription", "frequency", "How often the medication should be taken"),
			stringFn("set_pharmacy", "Set the pharmacy for the prescription", "pharmacy", "The name or location of the pharmacy"),
			confirmFn("dispatch_prescription", "Dispatch the current prescription"),
			confirmFn("clear_prescription", "Clear the current prescription form"),
		)
	case Scheduling:
		return append(identityFns("appointment"),
			stringFn("set_appointment_type", "Set the type of appointment", "type", "The type of appointment (e.g., Follow-up, Initial Consultation)"),
			stringFn("set_appointment_datetime", "Set the date and time for the appointment", "datetime", "The date and time of the appointment in ISO format"),
			agent.FunctionDef{
				Name:        "set_appointment_duration",
				Description: "Set the duration of the appointment (minimum 30 minutes)",
				Parameters: agent.ParameterSchema{
					Type: "object",
					Properties: map[string]agent.Property{
						"duration": {Type: "integer", Description: "The duration of the appointment in minutes (minimum 30)"},
					},
					Required: []string{"duration"},
				},
			},
			stringFn("set_appointment_notes", "Set any notes for the appointment", "notes", "Any additional notes for the appointment"),
			confirmFn("schedule_appointment", "Schedule the current appointment"),
			confirmFn("clear_appointment", "Clear the current appointment form"),
		)
	default:
		return nil
	}
}

// AllDefinitions returns every skill's functions for the initial Settings
// handshake; the router still only reaches the active skill's handlers.
func AllDefinitions() []agent.FunctionDef {
	seen := make(map[string]bool)
	var out []agent.FunctionDef
	for _, s := range All() {
		for _, def := range Definitions(s) {
			if seen[def.Name] {
				continue
			}
			seen[def.Name] = true
			out = append(out, def)
		}
	}
	return out
}
