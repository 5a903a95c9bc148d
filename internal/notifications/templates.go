package notifications

import "html/template"

var templates = template.Must(template.New("emails").Parse(`
{{define "signature"}}<p>Best Regards,<br>Team Educatory</p>{{end}}

{{define "registration_initiated"}}
<p>Dear {{.Name}},</p>
<p>Thank you for initiating your registration with <strong>Educatory</strong>!</p>
{{template "registration_details" .}}
<p>Please complete your payment to continue with the registration.</p>
{{template "signature"}}
{{end}}

{{define "details_updated"}}
<p>Dear {{.Name}},</p>
<p>Your basic details for <strong>{{.CourseName}}</strong> have been updated.</p>
{{template "registration_details" .}}
{{template "signature"}}
{{end}}

{{define "registration_details"}}
<div style="background-color:#f8f9fa;padding:15px;border-radius:5px;margin:20px 0;">
  <p style="margin:5px 0;"><strong>Registration Details:</strong></p>
  <p style="margin:5px 0;">Registration ID: {{.EnrollmentID}}</p>
  <p style="margin:5px 0;">Course: {{.CourseName}} ({{.CourseID}})</p>
  <p style="margin:5px 0;">Email: {{.Email}}</p>
  <p style="margin:5px 0;">Phone: {{.Phone}}</p>
  <p style="margin:5px 0;">Address: {{.Address}}</p>
</div>
{{end}}

{{define "registration_completed"}}
<p>Dear {{.Name}},</p>
<p>Congratulations! Your registration process with <strong>Educatory</strong> has been successfully completed.</p>
<ul style="list-style-type:none;padding-left:0;">
  <li>Registration ID: <strong>{{.EnrollmentID}}</strong></li>
  <li>Registered Email: <strong>{{.Email}}</strong></li>
  {{if .Invoice}}<li>Invoice: <strong>{{.Invoice}}</strong></li>{{end}}
</ul>
{{if .HasAttachment}}<p>Your enrollment details are attached. Please save them for future reference.</p>{{end}}
{{template "signature"}}
{{end}}

{{define "referral_program"}}
<p>Dear {{.Name}},</p>
<p>Thank you for registering with Educatory! Share your referral code with friends:</p>
<div style="background-color:#f8f9fa;padding:15px;border-radius:5px;margin:20px 0;">
  <p style="font-size:18px;text-align:center;margin:0;">Your Referral Code: <strong>{{.Code}}</strong></p>
</div>
<ol>
  <li>Share your referral code with friends</li>
  <li>When they register using your code, they get a discount on their course fee</li>
  <li>You get {{.Percent}}% of their course fee as a one-time coupon</li>
</ol>
{{template "signature"}}
{{end}}

{{define "coupon_earned"}}
<p>Dear {{.Name}},</p>
<p>The student you referred has successfully completed their enrollment.</p>
<p>As a reward you have earned a <strong>one-time use lifetime coupon</strong> worth &#8377;{{.Amount}}!</p>
{{if .HasImage}}<div style="text-align:center;margin:20px 0;"><img src="cid:{{.ImageName}}" alt="Your Coupon" style="max-width:600px;width:100%;height:auto;" /></div>{{end}}
<div style="background-color:#f8f9fa;padding:15px;border-radius:5px;margin:20px 0;">
  <p style="font-size:18px;text-align:center;margin:0;">Your Coupon Code: <strong>{{.Code}}</strong></p>
</div>
<ul>
  <li>This is a one-time use lifetime coupon</li>
  <li>The coupon is verified through an OTP sent to your registered email</li>
  <li>The course fee after the coupon must stay at least &#8377;1; the coupon is adjusted automatically otherwise</li>
</ul>
{{if .Reference}}<p>Reference Transaction: {{.Reference}}</p>{{end}}
{{template "signature"}}
{{end}}

{{define "coupon_otp"}}
<p>Dear {{.Name}},</p>
<p>Your OTP for validating coupon {{.Code}} is: <strong>{{.OTP}}</strong></p>
<p>This OTP is valid for {{.Minutes}} minutes.</p>
<p>Coupon Value: &#8377;{{.Amount}}</p>
{{if .Adjusted}}<p>Note: the coupon amount has been adjusted to keep a minimum course fee of &#8377;1.</p>{{end}}
{{template "signature"}}
{{end}}

{{define "coupon_used"}}
<p>Dear {{.Name}},</p>
<p>Your coupon ({{.Code}}) has been successfully used.</p>
<p>Transaction ID: {{.PaymentID}}</p>
<p>Amount: &#8377;{{.Amount}}</p>
<p>You can view the payment details here: <a href="{{.Link}}">{{.Link}}</a></p>
{{template "signature"}}
{{end}}

{{define "teacher_welcome"}}
<h2>Welcome to Educatory!</h2>
<p>Dear {{.Name}},</p>
<p>Thank you for registering as a Mentor at Educatory.</p>
<p>Your unique referral code is: <strong>{{.Code}}</strong></p>
{{if .HasAttachment}}<p>We've attached a shareable PDF with the details of the enrollment process.</p>{{end}}
<p>Click <a href="{{.DashboardLink}}">here</a> to see the students enrolled with your code.</p>
{{template "signature"}}
{{end}}

{{define "teacher_referral"}}
<p>Dear {{.Name}},</p>
<p>A new student has successfully enrolled through your referral.</p>
<div style="background-color:#f8f9fa;padding:15px;border-radius:5px;margin:20px 0;">
  <ul>
    <li>Student Name: {{.StudentName}}</li>
    <li>Course: {{.CourseName}}</li>
    <li>Commission: &#8377;{{.Commission}}</li>
  </ul>
</div>
{{if .Students}}
<table style="width:100%;border-collapse:collapse;">
  <tr style="background-color:#f8f9fa;">
    <th style="padding:10px;border:1px solid #ddd;">Registration ID</th>
    <th style="padding:10px;border:1px solid #ddd;">Student Name</th>
    <th style="padding:10px;border:1px solid #ddd;">Course</th>
    <th style="padding:10px;border:1px solid #ddd;">Status</th>
  </tr>
  {{range .Students}}
  <tr>
    <td style="padding:8px;border:1px solid #ddd;">{{.EnrollmentID}}</td>
    <td style="padding:8px;border:1px solid #ddd;">{{.StudentName}}</td>
    <td style="padding:8px;border:1px solid #ddd;">{{.CourseName}}</td>
    <td style="padding:8px;border:1px solid #ddd;">{{.PaidStatus}}</td>
  </tr>
  {{end}}
</table>
{{end}}
<p>Click <a href="{{.DashboardLink}}">here</a> to see all students enrolled with your code.</p>
{{template "signature"}}
{{end}}
`))
