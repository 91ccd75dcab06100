package schemas

// User is the authenticated principal as user-info/ reports it.
type User struct {
	UserID    string `json:"user_id" doc:"Student or staff number used to log in"`
	Name      string `json:"name" doc:"Display name"`
	Role      string `json:"role" enum:"student,teacher" doc:"Portal role"`
	ClassName string `json:"class_name,omitempty" doc:"Homeroom class, if any"`
}

type UserInfoResponse struct {
	Body User
}

type ProfileUpdateRequest struct {
	Body struct {
		Name string `json:"name" minLength:"1" maxLength:"100" doc:"New display name"`
	}
}
