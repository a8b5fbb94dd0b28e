package domain

// Field exposes named attributes for repository filters. Names match the
// JSON field names; enum values are returned as plain strings.

func (m Meta) metaField(name string) (any, bool) {
	switch name {
	case "id":
		return m.ID, true
	case "version":
		return m.Version, true
	case "createdAt":
		return m.CreatedAt, true
	case "updatedAt":
		return m.UpdatedAt, true
	}
	return nil, false
}

func (u User) Field(name string) (any, bool) {
	switch name {
	case "email":
		return u.Email, true
	case "role":
		return string(u.Role), true
	case "firstName":
		return u.FirstName, true
	case "lastName":
		return u.LastName, true
	}
	return u.metaField(name)
}

func (p Patient) Field(name string) (any, bool) {
	switch name {
	case "userId":
		return p.UserID, true
	case "assignedNurseId":
		return p.AssignedNurseID, true
	case "gender":
		return string(p.Gender), true
	case "bloodType":
		return string(p.BloodType), true
	}
	return p.metaField(name)
}

func (n Nurse) Field(name string) (any, bool) {
	switch name {
	case "userId":
		return n.UserID, true
	case "licenseNumber":
		return n.LicenseNumber, true
	case "specialization":
		return n.Specialization, true
	case "shift":
		return string(n.Shift), true
	case "isAvailable":
		return n.IsAvailable, true
	}
	return n.metaField(name)
}

func (a EmergencyAlert) Field(name string) (any, bool) {
	switch name {
	case "patientId":
		return a.PatientID, true
	case "nurseId":
		return a.NurseID, true
	case "type":
		return string(a.Type), true
	case "severity":
		return string(a.Severity), true
	case "status":
		return string(a.Status), true
	}
	return a.metaField(name)
}

func (v VitalSigns) Field(name string) (any, bool) {
	switch name {
	case "patientId":
		return v.PatientID, true
	case "timestamp":
		return v.Timestamp, true
	}
	return v.metaField(name)
}

func (c MedicalCondition) Field(name string) (any, bool) {
	switch name {
	case "patientId":
		return c.PatientID, true
	case "severity":
		return c.Severity, true
	}
	return c.metaField(name)
}

func (t MotivationalTip) Field(name string) (any, bool) {
	switch name {
	case "nurseId":
		return t.NurseID, true
	case "patientId":
		return t.PatientID, true
	case "category":
		return string(t.Category), true
	case "priority":
		return string(t.Priority), true
	case "isRead":
		return t.IsRead, true
	case "scheduledDate":
		return t.ScheduledDate, true
	}
	return t.metaField(name)
}

func (a Appointment) Field(name string) (any, bool) {
	switch name {
	case "patientId":
		return a.PatientID, true
	case "status":
		return string(a.Status), true
	}
	return a.metaField(name)
}

func (m Medication) Field(name string) (any, bool) {
	switch name {
	case "patientId":
		return m.PatientID, true
	case "startDate":
		return m.StartDate, true
	}
	return m.metaField(name)
}

func (s SymptomChecklist) Field(name string) (any, bool) {
	switch name {
	case "patientId":
		return s.PatientID, true
	case "nurseId":
		return s.NurseID, true
	case "visitDate":
		return s.VisitDate, true
	}
	return s.metaField(name)
}
