package store

// AppData is the whole persisted document.
type AppData struct {
	SetupDone bool     `json:"setupDone"`
	Users     []User   `json:"users"`
	Env       []EnvVar `json:"env"`
	Settings  Settings `json:"settings"`
}

type User struct {
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"`
}

type EnvVar struct {
	ID    string `json:"id"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Settings fields are optional; nil means "never set".
type Settings struct {
	SSHKey         *string        `json:"sshKey,omitempty"`
	BackendPort    *int           `json:"backendPort,omitempty"`
	Fail2banConfig map[string]any `json:"fail2banConfig,omitempty"`
}

// Default returns the document written on first access.
func Default() AppData {
	return AppData{Users: []User{}, Env: []EnvVar{}}
}

func (d *AppData) normalize() {
	if d.Users == nil {
		d.Users = []User{}
	}
	if d.Env == nil {
		d.Env = []EnvVar{}
	}
}

// FindUser returns the index of username in d.Users or -1.
func (d *AppData) FindUser(username string) int {
	for i := range d.Users {
		if d.Users[i].Username == username {
			return i
		}
	}
	return -1
}

// FindEnvByKey returns the index of key in d.Env or -1.
func (d *AppData) FindEnvByKey(key string) int {
	for i := range d.Env {
		if d.Env[i].Key == key {
			return i
		}
	}
	return -1
}

// FindEnvByID returns the index of id in d.Env or -1.
func (d *AppData) FindEnvByID(id string) int {
	for i := range d.Env {
		if d.Env[i].ID == id {
			return i
		}
	}
	return -1
}
