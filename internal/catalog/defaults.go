package catalog

func defaultFile() file {
	return file{
		Statuses: []Item{
			{ID: "status-open", Label: "Abierto", Value: "open"},
			{ID: "status-pending", Label: "Pendiente", Value: "pending"},
			{ID: "status-closed", Label: "Cerrado", Value: "closed"},
		},
		Priorities: []Item{
			{ID: "priority-baja", Label: "Baja", Value: "baja"},
			{ID: "priority-media", Label: "Media", Value: "media"},
			{ID: "priority-alta", Label: "Alta", Value: "alta"},
		},
		Impacts: []Item{
			{ID: "impact-departamento", Label: "Departamento", Value: "departamento"},
			{ID: "impact-servicio", Label: "Servicio", Value: "servicio"},
			{ID: "impact-persona", Label: "Persona", Value: "persona"},
		},
		Departments: []Item{
			{ID: "department-marketing", Label: "Marketing", Value: "marketing"},
			{ID: "department-facturacion", Label: "Facturación", Value: "facturacion"},
			{ID: "department-instalaciones", Label: "Instalaciones", Value: "instalaciones"},
			{ID: "department-soporte_ti", Label: "Soporte TI", Value: "soporte_ti"},
			{ID: "department-adquisiciones", Label: "Adquisiciones", Value: "adquisiciones"},
		},
		Types: []Item{
			{ID: "type-incidente", Label: "Incidente", Value: "incidente"},
			{ID: "type-solicitud", Label: "Solicitud", Value: "solicitud"},
		},
		Sources: []Item{
			{ID: "source-email", Label: "Correo", Value: "email"},
			{ID: "source-web", Label: "Web", Value: "web"},
			{ID: "source-system", Label: "Sistema", Value: "system"},
		},
		Defaults: Defaults{
			Status:     "open",
			Priority:   "media",
			Impact:     "persona",
			Department: "soporte_ti",
			Type:       "incidente",
			Sources:    map[string]string{"email": "email", "web": "web", "system": "system"},
		},
	}
}
